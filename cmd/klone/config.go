package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/pelletier/go-toml"
	"github.com/urfave/cli/v2"
)

func configCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration management commands",
		Subcommands: []*cli.Command{
			{
				Name:  "validate",
				Usage: "Validate a configuration file",
				Description: `Validates a klone configuration file for syntax errors and invalid values.

Examples:
  klone config validate                  # Validates default config locations
  klone -c klone.toml config validate    # Validates specific file`,
				Action: runConfigValidate,
			},
			{
				Name:  "show",
				Usage: "Show the effective configuration as TOML",
				Description: `Prints the configuration klone would run with, defaults included.

Examples:
  klone config show                  # Defaults merged with the discovered config
  klone -c klone.yaml config show    # Show config from specific file`,
				Action: runConfigShow,
			},
		},
	}
}

func runConfigValidate(c *cli.Context) error {
	if _, err := loadConfig(c); err != nil {
		color.Red("Configuration validation failed:")
		fmt.Printf("  - %s\n", err)
		return err
	}
	color.Green("Configuration is valid")
	return nil
}

func runConfigShow(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	shown := *cfg
	if shown.CodeStore.S3.SecretKey != "" {
		shown.CodeStore.S3.SecretKey = "********"
	}
	if path := c.String("config"); path != "" {
		fmt.Fprintf(c.App.Writer, "# Configuration from: %s\n\n", path)
	} else {
		fmt.Fprintln(c.App.Writer, "# Effective configuration")
	}
	content, err := toml.Marshal(shown)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Fprint(c.App.Writer, string(content))
	return nil
}
