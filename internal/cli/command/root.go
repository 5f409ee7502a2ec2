package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/autosave-go/internal/cli/config"
	"github.com/yndnr/autosave-go/internal/cli/connection"
	"github.com/yndnr/autosave-go/internal/cli/output"
	"github.com/yndnr/autosave-go/internal/infra/buildinfo"
)

const (
	metaClient = "client"
	metaFormat = "format"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:                 "autosave-cli",
		Usage:                "Inspect and manage autosaved form states",
		Version:              buildinfo.String(),
		Flags:                globalFlags(),
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			AutosaveCommand(),
			AdminCommand(),
			SystemCommand(),
		},
		Before: setup,
	}
}

// globalFlags returns the global CLI flags. Unset flags fall back to the
// config file and AUTOSAVE_CLI_* variables.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "CLI config file (default: $XDG_CONFIG_HOME/autosave/cli.yaml)",
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "autosave-server address (e.g. 127.0.0.1:5080 or unix:///run/autosave-server/admin.sock)",
		},
		&cli.StringFlag{
			Name:  "ca-file",
			Usage: "PEM bundle trusted for https servers",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Timeout of each API call",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
		},
	}
}

// setup resolves the configuration and builds the API client.
func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("server") {
		cfg.Server = c.String("server")
	}
	if c.IsSet("ca-file") {
		cfg.CAFile = c.String("ca-file")
	}
	if c.IsSet("timeout") {
		cfg.Timeout = c.Duration("timeout")
	}
	if c.IsSet("output") {
		cfg.Output = c.String("output")
	}

	format, err := output.ParseFormat(cfg.Output)
	if err != nil {
		return err
	}
	client, err := connection.NewClient(cfg.Server, connection.Options{Timeout: cfg.Timeout, CAFile: cfg.CAFile})
	if err != nil {
		return err
	}

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[metaClient] = client
	c.App.Metadata[metaFormat] = format
	return nil
}

// clientFrom returns the client built by setup.
func clientFrom(c *cli.Context) (*connection.Client, error) {
	client, ok := c.App.Metadata[metaClient].(*connection.Client)
	if !ok {
		return nil, fmt.Errorf("not connected")
	}
	return client, nil
}

// printResult writes data in the selected output format.
func printResult(c *cli.Context, data any) error {
	format, _ := c.App.Metadata[metaFormat].(output.Format)
	return output.NewFormatter(format).Format(c.App.Writer, data)
}
