package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/klone/internal/testutil"
	"github.com/panbanda/klone/pkg/codestore"
	"github.com/panbanda/klone/pkg/config"
	"github.com/panbanda/klone/pkg/models"
	"github.com/panbanda/klone/pkg/tokenizer"
)

const manifest = `courses:
  - id: 1
    name: Kotlin 101
submissions:
  - id: 10
    state: open
    project: {id: 100, name: calc-alice, course_id: 1, denizen: {id: 1000, name: alice}}
  - id: 11
    state: closed
    project: {id: 110, name: calc-bob, course_id: 1, denizen: {id: 1100, name: bob}}
  - id: 12
    state: obsolete
    project: {id: 120, name: calc-carol, course_id: 1, denizen: {id: 1200, name: carol}}
`

const (
	baseKt = `fun greet(name: String): String {
    return "Hello " + name
}
`
	aliceKt = `fun add(a: Int, b: Int): Int {
    return a + b
}
`
	bobKt = `fun plus(x: Int, y: Int): Int {
    return x + y
}
`
)

// fixture lays out a catalog, a directory code store and a config file.
func fixture(t *testing.T) (dir, cfgPath string) {
	t.Helper()
	dir = t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, "catalog.yaml"), manifest)
	repos := filepath.Join(dir, "repos")
	testutil.WriteEntity(t, repos, models.CourseRef(1), map[string]string{"lib/Base.kt": baseKt})
	testutil.WriteEntity(t, repos, models.SubmissionRef(10), map[string]string{"src/Main.kt": aliceKt})
	testutil.WriteEntity(t, repos, models.SubmissionRef(11), map[string]string{"src/Calc.kt": bobKt})
	testutil.WriteEntity(t, repos, models.SubmissionRef(12), map[string]string{"src/Calc.kt": bobKt})

	cfgPath = filepath.Join(dir, "klone.yaml")
	testutil.WriteFile(t, cfgPath, `catalog:
  manifest: `+filepath.Join(dir, "catalog.yaml")+`
codestore:
  kind: dir
  root: `+filepath.Join(dir, "repos")+`
  cache_size: 16
reportstore:
  driver: sqlite
  dsn: `+filepath.Join(dir, "data", "reports.db")+`
tokenizer:
  languages: [kotlin]
cache:
  enabled: true
  dir: `+filepath.Join(dir, "cache")+`
scheduler:
  backoff_base: 1ms
  backoff_max: 5ms
`)
	return dir, cfgPath
}

func TestCheckCommand(t *testing.T) {
	dir, cfgPath := fixture(t)
	out := filepath.Join(dir, "check.json")

	err := newApp().Run([]string{"klone", "-c", cfgPath, "-f", "json", "-o", out, "check", "--course", "1"})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var got struct {
		Summary models.CourseSummary `json:"summary"`
		Reports []models.ReportRow   `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, 1, got.Summary.CourseID)
	assert.Equal(t, []int{10, 11}, got.Summary.FlaggedSubmissions)
	assert.Equal(t, 2, got.Summary.IndexedSubmissions)
	require.Len(t, got.Reports, 2)
	for _, row := range got.Reports {
		require.Len(t, row.Body, 1, "submission %d", row.SubmissionID)
		assert.Len(t, row.Body[0], 2)
	}

	// Rows persist in the sqlite store and are readable by later runs.
	reportOut := filepath.Join(dir, "report.json")
	require.NoError(t, newApp().Run([]string{"klone", "-c", cfgPath, "-f", "json", "-o", reportOut, "report", "--submission", "11"}))
	data, err = os.ReadFile(reportOut)
	require.NoError(t, err)
	var row models.ReportRow
	require.NoError(t, json.Unmarshal(data, &row))
	assert.Equal(t, 11, row.SubmissionID)
	assert.Equal(t, models.KloneCheckResultType, row.Type)

	summaryOut := filepath.Join(dir, "summary.md")
	require.NoError(t, newApp().Run([]string{"klone", "-c", cfgPath, "-f", "markdown", "-o", summaryOut, "summary", "--course", "1"}))
	data, err = os.ReadFile(summaryOut)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Course 1 clone summary")

	entries, err := os.ReadDir(filepath.Join(dir, "cache"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries, "tokenization cache should be populated")
}

func TestCheckUnknownCourse(t *testing.T) {
	_, cfgPath := fixture(t)
	err := newApp().Run([]string{"klone", "-c", cfgPath, "check", "--course", "9"})
	assert.ErrorContains(t, err, "not found")
}

func TestTokenizeCommand(t *testing.T) {
	dir, cfgPath := fixture(t)
	out := filepath.Join(dir, "units.json")
	src := filepath.Join(dir, "repos", "submission", "10", "src", "Main.kt")

	require.NoError(t, newApp().Run([]string{"klone", "-c", cfgPath, "-f", "json", "-o", out, "tokenize", src}))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var units []struct {
		Function string `json:"function"`
		FromLine int    `json:"from_line"`
		ToLine   int    `json:"to_line"`
	}
	require.NoError(t, json.Unmarshal(data, &units))
	require.Len(t, units, 1)
	assert.Equal(t, "add", units[0].Function)
	assert.Equal(t, 1, units[0].FromLine)
	assert.Equal(t, 3, units[0].ToLine)

	err = newApp().Run([]string{"klone", "-c", cfgPath, "tokenize", filepath.Join(dir, "catalog.yaml")})
	assert.ErrorContains(t, err, "no tokenizer")
}

func TestLoadConfigFlags(t *testing.T) {
	_, cfgPath := fixture(t)
	var cfg *config.Config
	app := newApp()
	app.Commands = append(app.Commands, &cli.Command{
		Name: "probe",
		Action: func(c *cli.Context) error {
			var err error
			cfg, err = loadConfig(c)
			return err
		},
	})

	require.NoError(t, app.Run([]string{"klone", "-c", cfgPath, "-f", "toon", "--no-cache", "--verbose", "probe"}))
	require.NotNil(t, cfg)
	assert.Equal(t, "toon", cfg.Output.Format)
	assert.False(t, cfg.Cache.Enabled)
	assert.True(t, cfg.Output.Verbose)
	assert.Equal(t, "dir", cfg.CodeStore.Kind)
}

func TestOpenCodeStore(t *testing.T) {
	store, git, err := openCodeStore(config.CodeStoreConfig{Kind: "dir", Root: t.TempDir()}, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, git)
	assert.IsType(t, &codestore.Dir{}, store)

	store, _, err = openCodeStore(config.CodeStoreConfig{Kind: "memory", CacheSize: 8}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &codestore.Cached{}, store)

	_, git, err = openCodeStore(config.CodeStoreConfig{Kind: "git", Workdir: filepath.Join(t.TempDir(), "work")}, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, git)

	_, _, err = openCodeStore(config.CodeStoreConfig{Kind: "s3"}, nil, nil)
	assert.Error(t, err)

	_, _, err = openCodeStore(config.CodeStoreConfig{Kind: "ftp"}, nil, nil)
	assert.Error(t, err)
}

func TestBuildTokenizersMarkerOverride(t *testing.T) {
	reg, err := buildTokenizers(config.TokenizerConfig{
		Languages: []string{"Kotlin"},
	}, config.CacheConfig{})
	require.NoError(t, err)
	assert.True(t, reg.Supports("Main.kt"))
	assert.False(t, reg.Supports("Main.java"))

	_, err = buildTokenizers(config.TokenizerConfig{
		Languages:   []string{"haskell"},
		TestMarkers: map[string]tokenizer.TestMarkers{"haskell": {NamePrefixes: []string{"prop_"}}},
	}, config.CacheConfig{})
	assert.ErrorContains(t, err, "no structured tokenizer")
}

func TestMCPManifestCommand(t *testing.T) {
	var buf bytes.Buffer
	app := newApp()
	app.Writer = &buf

	require.NoError(t, app.Run([]string{"klone", "mcp", "manifest"}))
	assert.Contains(t, buf.String(), `"name": "io.github.panbanda/klone"`)
}

func TestConfigShowMasksSecret(t *testing.T) {
	_, cfgPath := fixture(t)
	t.Setenv("KLONE_S3_SECRET_KEY", "hunter2")

	var buf bytes.Buffer
	app := newApp()
	app.Writer = &buf
	require.NoError(t, app.Run([]string{"klone", "-c", cfgPath, "config", "show"}))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "# Configuration from: "+cfgPath))
	assert.Contains(t, out, "reports.db")
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, "hunter2")
}
