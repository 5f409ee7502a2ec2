package command

import (
	"net/http"

	"github.com/urfave/cli/v2"
)

// SystemCommand returns the system subcommand group.
func SystemCommand() *cli.Command {
	return &cli.Command{
		Name:    "system",
		Aliases: []string{"sys"},
		Usage:   "Server health and status",
		Subcommands: []*cli.Command{
			{
				Name:   "health",
				Usage:  "Check server liveness",
				Action: getAndPrint("/health"),
			},
			{
				Name:   "ready",
				Usage:  "Check server readiness",
				Action: getAndPrint("/ready"),
			},
			{
				Name:   "settings",
				Usage:  "Show the client-side autosave settings",
				Action: getAndPrint("/v1/autosave/settings"),
			},
			{
				Name:   "status",
				Usage:  "Show the status summary (admin)",
				Action: getAndPrint("/admin/v1/status/summary"),
			},
		},
	}
}

func getAndPrint(path string) cli.ActionFunc {
	return func(c *cli.Context) error {
		client, err := clientFrom(c)
		if err != nil {
			return err
		}
		var result map[string]any
		if err := client.Call(c.Context, http.MethodGet, path, nil, nil, &result); err != nil {
			return err
		}
		return printResult(c, result)
	}
}
