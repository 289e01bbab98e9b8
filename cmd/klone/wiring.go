package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/panbanda/klone/internal/cache"
	"github.com/panbanda/klone/internal/checker"
	"github.com/panbanda/klone/pkg/catalog"
	"github.com/panbanda/klone/pkg/codestore"
	"github.com/panbanda/klone/pkg/config"
	"github.com/panbanda/klone/pkg/extract"
	"github.com/panbanda/klone/pkg/parser"
	"github.com/panbanda/klone/pkg/reportstore"
	"github.com/panbanda/klone/pkg/scheduler"
	"github.com/panbanda/klone/pkg/tokenizer"
)

// engine holds the wired components of one klone process.
type engine struct {
	cfg     *config.Config
	logger  *slog.Logger
	catalog *catalog.Memory
	reports reportstore.Store
	git     *codestore.Git
	checker *checker.Checker
}

// newEngine wires catalog, code store, tokenizers and report store from cfg.
func newEngine(cfg *config.Config, logger *slog.Logger, opts ...scheduler.Option) (*engine, error) {
	cat, err := catalog.LoadManifest(cfg.Catalog.Manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	store, git, err := openCodeStore(cfg.CodeStore, cat, logger)
	if err != nil {
		return nil, err
	}

	tokens, err := buildTokenizers(cfg.Tokenizer, cfg.Cache)
	if err != nil {
		return nil, err
	}

	reports, err := openReportStore(cfg.ReportStore)
	if err != nil {
		return nil, err
	}

	c := checker.New(cat, store, tokens, reports,
		checker.WithLogger(logger),
		checker.WithSchedulerConfig(cfg.Scheduler),
		checker.WithSchedulerOptions(opts...),
		checker.WithBaselinePolicy(extract.BaselinePolicy(cfg.Report.BaselinePolicy)),
		checker.WithResultType(cfg.Report.ResultType),
		checker.WithConcurrency(cfg.Fetch.Concurrency),
	)

	return &engine{
		cfg:     cfg,
		logger:  logger,
		catalog: cat,
		reports: reports,
		git:     git,
		checker: c,
	}, nil
}

// Close stops the index worker, waits for background clones and closes the
// report store.
func (e *engine) Close() error {
	e.checker.Close()
	if e.git != nil {
		e.git.Wait()
	}
	return e.reports.Close()
}

func openCodeStore(cfg config.CodeStoreConfig, locator codestore.Locator, logger *slog.Logger) (codestore.Store, *codestore.Git, error) {
	var (
		store codestore.Store
		git   *codestore.Git
	)
	switch cfg.Kind {
	case "memory":
		store = codestore.NewMemory()
	case "dir":
		store = codestore.NewDir(cfg.Root)
	case "git":
		if err := os.MkdirAll(cfg.Workdir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create git workdir: %w", err)
		}
		git = codestore.NewGit(cfg.Workdir, locator, logger)
		store = git
	case "s3":
		s3, err := codestore.NewS3(cfg.S3)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open s3 code store: %w", err)
		}
		store = s3
	default:
		return nil, nil, fmt.Errorf("unknown code store kind: %s", cfg.Kind)
	}

	if cfg.CacheSize > 0 {
		cached, err := codestore.NewCached(store, cfg.CacheSize)
		if err != nil {
			return nil, nil, err
		}
		store = cached
	}
	return store, git, nil
}

// buildTokenizers registers the configured languages, applies test-marker
// overrides and wraps every tokenizer with the on-disk cache when enabled.
func buildTokenizers(cfg config.TokenizerConfig, cacheCfg config.CacheConfig) (*tokenizer.Registry, error) {
	langs := make([]parser.Language, 0, len(cfg.Languages))
	for _, name := range cfg.Languages {
		langs = append(langs, parser.Language(strings.ToLower(strings.TrimSpace(name))))
	}

	namer := tokenizer.NewRandomNamer()
	reg, err := tokenizer.Default(namer, langs...)
	if err != nil {
		return nil, fmt.Errorf("failed to set up tokenizers: %w", err)
	}

	for name, markers := range cfg.TestMarkers {
		lang := parser.Language(strings.ToLower(name))
		if !lang.Structured() {
			return nil, fmt.Errorf("tokenizer.test_markers: %s has no structured tokenizer", name)
		}
		reg.Register(lang, tokenizer.NewStructured(lang, namer, markers))
	}

	if cacheCfg.Enabled {
		store, err := cache.New(cacheCfg.Dir, cacheCfg.TTL, true)
		if err != nil {
			return nil, fmt.Errorf("failed to open tokenization cache: %w", err)
		}
		reg.Wrap(func(t tokenizer.Tokenizer) tokenizer.Tokenizer {
			return tokenizer.WithCache(t, store)
		})
	}
	return reg, nil
}

func openReportStore(cfg config.ReportStoreConfig) (reportstore.Store, error) {
	if cfg.Driver == "sqlite" {
		if dir := filepath.Dir(cfg.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create report store directory: %w", err)
			}
		}
	}
	store, err := reportstore.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open report store: %w", err)
	}
	return store, nil
}
