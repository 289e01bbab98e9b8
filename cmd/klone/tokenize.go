package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/klone/internal/output"
	"github.com/panbanda/klone/pkg/models"
	"github.com/panbanda/klone/pkg/tokenizer"
)

func tokenizeCmd() *cli.Command {
	return &cli.Command{
		Name:      "tokenize",
		Usage:     "Print the indexed source units of a file",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "preview",
				Value: 12,
				Usage: "Number of symbols shown per unit",
			},
		},
		Action: runTokenizeCmd,
	}
}

func runTokenizeCmd(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one file, got %d", c.Args().Len())
	}
	path := c.Args().First()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	// The file is read directly; caching would only add disk writes.
	cfg.Cache.Enabled = false
	reg, err := buildTokenizers(cfg.Tokenizer, cfg.Cache)
	if err != nil {
		return err
	}
	if !reg.Supports(path) {
		return fmt.Errorf("%s: no tokenizer for this file type", path)
	}

	text, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	units, err := reg.Tokenize(c.Context, tokenizer.Source{
		Text:     string(text),
		Filename: path,
		Mode:     models.ModeSubmission,
	})
	if err != nil {
		return err
	}
	if len(units) == 0 {
		color.Yellow("No indexable units in %s", path)
		return nil
	}
	return render(c, cfg, output.Units(units, c.Int("preview")))
}
