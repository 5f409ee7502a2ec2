package command

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/autosave-go/internal/cli/output"
)

// AdminCommand returns the admin subcommand group.
func AdminCommand() *cli.Command {
	return &cli.Command{
		Name:  "admin",
		Usage: "Administrative operations (loopback or allowlisted clients only)",
		Subcommands: []*cli.Command{
			{
				Name:  "purge",
				Usage: "Purge autosaved states across forms and sessions",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "entity-type", Usage: "Entity type id"},
					&cli.StringFlag{Name: "entity-id", Usage: "Entity id (requires --entity-type)"},
					&cli.StringFlag{Name: "langcode", Aliases: []string{"l"}, Usage: "Translation langcode"},
					&cli.StringFlag{Name: "uid", Aliases: []string{"u"}, Usage: "User id"},
				},
				Action: adminPurge,
			},
			{
				Name:   "gc",
				Usage:  "Trigger storage garbage collection",
				Action: adminGC,
			},
			{
				Name:  "backup",
				Usage: "Download a consistent backup of the snapshot store",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Destination file (default: server-suggested name in the current directory)",
					},
				},
				Action: adminBackup,
			},
		},
	}
}

func adminPurge(c *cli.Context) error {
	client, err := clientFrom(c)
	if err != nil {
		return err
	}

	body := map[string]string{
		"entity_type_id": c.String("entity-type"),
		"entity_id":      c.String("entity-id"),
		"langcode":       c.String("langcode"),
		"uid":            c.String("uid"),
	}
	var result struct {
		Purged int `json:"purged"`
	}
	if err := client.Call(c.Context, http.MethodPost, "/admin/v1/purge", nil, body, &result); err != nil {
		return err
	}
	return printResult(c, result)
}

func adminGC(c *cli.Context) error {
	client, err := clientFrom(c)
	if err != nil {
		return err
	}
	var result map[string]any
	if err := client.Call(c.Context, http.MethodPost, "/admin/v1/gc/trigger", nil, nil, &result); err != nil {
		return err
	}
	return printResult(c, result)
}

// adminBackup streams the backup into a temporary file next to the
// destination and renames it once complete.
func adminBackup(c *cli.Context) error {
	client, err := clientFrom(c)
	if err != nil {
		return err
	}

	dest := c.String("file")
	dir := "."
	if dest != "" {
		dir = filepath.Dir(dest)
	}
	tmp, err := os.CreateTemp(dir, ".autosave-backup-*")
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}
	defer os.Remove(tmp.Name())

	progress := output.NewProgressWriter(tmp, c.App.ErrWriter, "downloading backup")
	name, err := client.Download(c.Context, "/admin/v1/backup", progress)
	progress.Finish()
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	if dest == "" {
		dest = name
		if dest == "" {
			dest = "autosave.bak"
		}
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("save backup: %w", err)
	}
	return printResult(c, map[string]any{"file": dest, "bytes": progress.Written()})
}
