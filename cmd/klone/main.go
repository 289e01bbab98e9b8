package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/klone/pkg/config"
)

var (
	version = "dev"
	commit  = "none"    //nolint:unused // set via ldflags at build time
	date    = "unknown" //nolint:unused // set via ldflags at build time
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:     "klone",
		Usage:    "Code clone detection for course submissions",
		Version:  version,
		Metadata: make(map[string]interface{}),
		Description: `Klone tokenizes every eligible submission of a course, indexes the
function bodies in a shared suffix tree and reports functions that are
structurally identical across students. Code from the course baseline
repository is never reported.

Supports: Kotlin, Java, Go, Python, Rust, TypeScript, JavaScript, C, C++, C#, Haskell`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (TOML, YAML, or JSON)",
				EnvVars: []string{"KLONE_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, json, markdown, toon",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write output to file",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Disable the tokenization cache",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
			&cli.StringFlag{
				Name:  "pprof",
				Usage: "Enable pprof profiling and write to specified prefix (creates <prefix>.cpu.pprof and <prefix>.mem.pprof)",
			},
		},
		Before: startProfile,
		After:  stopProfile,
		Commands: []*cli.Command{
			checkCmd(),
			reportCmd(),
			summaryCmd(),
			serveCmd(),
			mcpCmd(),
			tokenizeCmd(),
			configCmd(),
		},
	}
}

func startProfile(c *cli.Context) error {
	prefix := c.String("pprof")
	if prefix == "" {
		return nil
	}
	cpuFile, err := os.Create(prefix + ".cpu.pprof")
	if err != nil {
		return fmt.Errorf("failed to create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuFile); err != nil {
		cpuFile.Close()
		return fmt.Errorf("failed to start CPU profile: %w", err)
	}
	c.App.Metadata["pprofCPU"] = cpuFile
	return nil
}

func stopProfile(c *cli.Context) error {
	prefix := c.String("pprof")
	if prefix == "" {
		return nil
	}
	pprof.StopCPUProfile()
	if cpuFile, ok := c.App.Metadata["pprofCPU"].(*os.File); ok {
		cpuFile.Close()
		color.Green("CPU profile written to %s.cpu.pprof", prefix)
	}

	memFile, err := os.Create(prefix + ".mem.pprof")
	if err != nil {
		return fmt.Errorf("failed to create memory profile: %w", err)
	}
	defer memFile.Close()

	runtime.GC()
	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("failed to write memory profile: %w", err)
	}
	color.Green("Memory profile written to %s.mem.pprof", prefix)
	return nil
}

// loadConfig reads --config when given, otherwise the default locations,
// then applies command-line overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
		cfg = loaded
	} else {
		cfg = config.LoadOrDefault()
	}

	if f := c.String("format"); f != "" {
		cfg.Output.Format = f
	}
	if c.Bool("no-cache") {
		cfg.Cache.Enabled = false
	}
	if c.Bool("verbose") {
		cfg.Output.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger logs to stderr, at Debug when verbose.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
