package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/panbanda/klone/pkg/codestore"
	"github.com/panbanda/klone/pkg/scheduler"
	"github.com/panbanda/klone/pkg/tokenizer"
)

// Config holds all configuration options for klone.
type Config struct {
	// Drain loop timings and retry policy
	Scheduler scheduler.Config `koanf:"scheduler"`

	// File fetching within one task
	Fetch FetchConfig `koanf:"fetch"`

	// Languages and test markers
	Tokenizer TokenizerConfig `koanf:"tokenizer"`

	// Where entity files come from
	CodeStore CodeStoreConfig `koanf:"codestore"`

	// Course and submission metadata
	Catalog CatalogConfig `koanf:"catalog"`

	// Where reports go
	ReportStore ReportStoreConfig `koanf:"reportstore"`

	// Clone report policy
	Report ReportConfig `koanf:"report"`

	// Tokenization cache
	Cache CacheConfig `koanf:"cache"`

	// HTTP API
	Server ServerConfig `koanf:"server"`

	// Output settings
	Output OutputConfig `koanf:"output"`
}

// FetchConfig bounds concurrent file reads.
type FetchConfig struct {
	Concurrency int `koanf:"concurrency"`
}

// TokenizerConfig selects languages. TestMarkers overrides the default
// test-function markers per language.
type TokenizerConfig struct {
	Languages   []string                         `koanf:"languages"`
	TestMarkers map[string]tokenizer.TestMarkers `koanf:"test_markers"`
}

// CodeStoreConfig selects the code store.
type CodeStoreConfig struct {
	Kind      string             `koanf:"kind"` // memory, dir, git, s3
	Root      string             `koanf:"root"`
	Workdir   string             `koanf:"workdir"`
	CacheSize int                `koanf:"cache_size"` // 0 disables the file cache
	S3        codestore.S3Config `koanf:"s3"`
}

// CatalogConfig points at the catalog manifest.
type CatalogConfig struct {
	Manifest string `koanf:"manifest"`
}

// ReportStoreConfig selects the report store.
type ReportStoreConfig struct {
	Driver string `koanf:"driver"` // memory, sqlite, postgres
	DSN    string `koanf:"dsn"`
}

// ReportConfig controls report contents.
type ReportConfig struct {
	BaselinePolicy string `koanf:"baseline_policy"` // strip, drop_class
	ResultType     string `koanf:"result_type"`
}

// CacheConfig controls caching behavior.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled"`
	Dir     string `koanf:"dir"`
	TTL     int    `koanf:"ttl"` // TTL in hours
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format  string `koanf:"format"` // text, json, markdown, toon
	Color   bool   `koanf:"color"`
	Verbose bool   `koanf:"verbose"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Scheduler: scheduler.DefaultConfig(),
		Fetch: FetchConfig{
			Concurrency: 8,
		},
		Tokenizer: TokenizerConfig{
			Languages: []string{"kotlin", "haskell"},
		},
		CodeStore: CodeStoreConfig{
			Kind:      "dir",
			Root:      "repos",
			Workdir:   ".klone/repos",
			CacheSize: 4096,
		},
		Catalog: CatalogConfig{
			Manifest: "catalog.yaml",
		},
		ReportStore: ReportStoreConfig{
			Driver: "sqlite",
			DSN:    ".klone/reports.db",
		},
		Report: ReportConfig{
			BaselinePolicy: "strip",
			ResultType:     "klonecheck",
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     ".klone/cache",
			TTL:     24,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Output: OutputConfig{
			Format:  "text",
			Color:   true,
			Verbose: false,
		},
	}
}

// Load loads configuration from a file, then applies environment overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	// Determine parser based on extension
	var parser koanf.Parser
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".toml":
		parser = toml.Parser()
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// LoadOrDefault tries to load config from standard locations or returns
// defaults. A .env file in the working directory is loaded first.
func LoadOrDefault() *Config {
	_ = godotenv.Load()

	configNames := []string{
		"klone.toml",
		"klone.yaml",
		"klone.yml",
		"klone.json",
		".klone.toml",
		".klone.yaml",
		".klone.yml",
		".klone.json",
	}

	// Search in current directory and .klone directory
	searchDirs := []string{".", ".klone"}

	for _, dir := range searchDirs {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				cfg, err := Load(path)
				if err == nil {
					return cfg
				}
			}
		}
	}

	cfg := DefaultConfig()
	cfg.ApplyEnv()
	return cfg
}

// ApplyEnv overrides settings from KLONE_* environment variables.
func (c *Config) ApplyEnv() {
	overrides := []struct {
		name string
		dst  *string
	}{
		{"KLONE_CATALOG", &c.Catalog.Manifest},
		{"KLONE_CODESTORE", &c.CodeStore.Kind},
		{"KLONE_CODESTORE_ROOT", &c.CodeStore.Root},
		{"KLONE_REPORT_DRIVER", &c.ReportStore.Driver},
		{"KLONE_REPORT_DSN", &c.ReportStore.DSN},
		{"KLONE_S3_ENDPOINT", &c.CodeStore.S3.Endpoint},
		{"KLONE_S3_BUCKET", &c.CodeStore.S3.Bucket},
		{"KLONE_S3_ACCESS_KEY", &c.CodeStore.S3.AccessKey},
		{"KLONE_S3_SECRET_KEY", &c.CodeStore.S3.SecretKey},
		{"KLONE_SERVER_ADDR", &c.Server.Addr},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.name)); v != "" {
			*o.dst = v
		}
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Report.BaselinePolicy {
	case "strip", "drop_class":
	default:
		return fmt.Errorf("report.baseline_policy: unknown policy %q", c.Report.BaselinePolicy)
	}
	switch c.CodeStore.Kind {
	case "memory", "dir", "git", "s3":
	default:
		return fmt.Errorf("codestore.kind: unknown kind %q", c.CodeStore.Kind)
	}
	switch c.ReportStore.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("reportstore.driver: unknown driver %q", c.ReportStore.Driver)
	}
	if c.Fetch.Concurrency < 1 {
		return fmt.Errorf("fetch.concurrency must be positive, got %d", c.Fetch.Concurrency)
	}
	if c.Scheduler.MaxAttempts < 0 {
		return fmt.Errorf("scheduler.max_attempts must not be negative")
	}
	if c.Scheduler.BackoffBase < 0 || c.Scheduler.BackoffMax < 0 {
		return fmt.Errorf("scheduler backoff durations must not be negative")
	}
	return nil
}
