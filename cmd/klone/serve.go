package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/sourcegraph/conc"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/klone/internal/api"
	"github.com/panbanda/klone/internal/mcpserver"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the clone-check queue and the HTTP API",
		Description: `Starts the request drain loop and serves:

  POST /courses/{id}/klonecheck     queue a check of a course
  POST /submissions/{id}/klonecheck queue a check of one submission
  GET  /submissions/{id}/klones     stored report of a submission
  GET  /courses/{id}/summary        stored summary of a course
  GET  /queue                       pending requests
  GET  /health                      index statistics

Reports are JSON unless ?format=text, markdown or toon is given.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (overrides server.addr)",
			},
		},
		Action: runServeCmd,
	}
}

func runServeCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	logger := newLogger(cfg.Output.Verbose)
	e, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext()
	defer cancel()

	server := api.NewServer(e.checker, logger)
	color.Green("klone listening on %s", cfg.Server.Addr)

	var (
		wg      conc.WaitGroup
		loopErr error
	)
	wg.Go(func() {
		loopErr = e.checker.Run(ctx)
	})
	serveErr := server.ListenAndServe(ctx, cfg.Server.Addr)
	cancel()
	wg.Wait()

	if loopErr != nil && !errors.Is(loopErr, context.Canceled) {
		return loopErr
	}
	return serveErr
}

func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Start MCP (Model Context Protocol) server for LLM tool integration",
		Description: `Starts an MCP server over stdio transport. The clone-check queue runs in
the background while the server is up.

To use with Claude Desktop, add to your config:
  {
    "mcpServers": {
      "klone": {
        "command": "klone",
        "args": ["mcp"]
      }
    }
  }

Available tools:
  - request_clone_check   Queue a check of every eligible submission of a course
  - get_clone_report      Stored clone report of a submission
  - get_course_summary    Clone classes, flagged submissions and clusters of a course
  - get_queue             Pending requests and retry state`,
		Action: runMCPCmd,
		Subcommands: []*cli.Command{
			{
				Name:  "manifest",
				Usage: "Print the MCP registry manifest (server.json)",
				Action: func(c *cli.Context) error {
					data, err := mcpserver.GenerateManifest(version)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(c.App.Writer, string(data))
					return err
				},
			},
		},
	}
}

func runMCPCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	// stdout carries the protocol; logs stay on stderr.
	e, err := newEngine(cfg, newLogger(cfg.Output.Verbose))
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext()

	var wg conc.WaitGroup
	wg.Go(func() {
		_ = e.checker.Run(ctx)
	})
	defer wg.Wait()
	defer cancel()

	return mcpserver.NewServer(version, e.checker).Run(ctx)
}
