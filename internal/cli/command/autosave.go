package command

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/autosave-go/internal/cli/connection"
	"github.com/yndnr/autosave-go/internal/core/domain"
)

// AutosaveCommand returns the autosave subcommand group.
func AutosaveCommand() *cli.Command {
	return &cli.Command{
		Name:    "autosave",
		Aliases: []string{"as"},
		Usage:   "Autosaved states of one entity",
		Subcommands: []*cli.Command{
			{
				Name:      "state",
				Usage:     "Show whether an entity has autosaved state",
				ArgsUsage: "TYPE/ID",
				Flags:     scopeFlags(),
				Action:    autosaveState,
			},
			{
				Name:      "restore",
				Usage:     "Show the latest autosaved state of an entity",
				ArgsUsage: "TYPE/ID",
				Flags: append(scopeFlags(),
					&cli.StringFlag{
						Name:  "part",
						Usage: "What to restore: all, entity, form_state",
						Value: "all",
					},
					&cli.Int64Flag{
						Name:  "timestamp",
						Usage: "Restore this exact snapshot instead of the latest",
					},
				),
				Action: autosaveRestore,
			},
			{
				Name:      "purge",
				Usage:     "Discard the autosaved states of an entity",
				ArgsUsage: "TYPE/ID",
				Flags:     scopeFlags(),
				Action:    autosavePurge,
			},
		},
	}
}

func scopeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "form", Usage: "Form id"},
		&cli.StringFlag{Name: "session", Usage: "Form session id"},
		&cli.StringFlag{Name: "langcode", Aliases: []string{"l"}, Usage: "Translation langcode"},
		&cli.StringFlag{Name: "uid", Aliases: []string{"u"}, Usage: "User id"},
	}
}

// entityArg parses the TYPE/ID argument.
func entityArg(c *cli.Context) (domain.EntityRef, error) {
	if c.NArg() != 1 {
		return domain.EntityRef{}, fmt.Errorf("expected exactly one TYPE/ID argument")
	}
	return domain.ParseEntityRef(c.Args().First())
}

func scopeQuery(c *cli.Context, ref domain.EntityRef) url.Values {
	q := url.Values{
		"entity_type_id": {ref.Type},
		"entity_id":      {ref.ID},
	}
	for flag, key := range map[string]string{"form": "form_id", "session": "form_session_id", "langcode": "langcode", "uid": "uid"} {
		if v := c.String(flag); v != "" {
			q.Set(key, v)
		}
	}
	return q
}

func autosaveState(c *cli.Context) error {
	ref, err := entityArg(c)
	if err != nil {
		return err
	}
	client, err := clientFrom(c)
	if err != nil {
		return err
	}

	var state struct {
		Exists        bool  `json:"exists"`
		LastTimestamp int64 `json:"last_timestamp,omitempty"`
	}
	if err := client.Call(c.Context, http.MethodGet, "/v1/autosave/state", scopeQuery(c, ref), nil, &state); err != nil {
		return err
	}
	return printResult(c, map[string]any{
		"entity":         ref.String(),
		"exists":         state.Exists,
		"last_timestamp": state.LastTimestamp,
	})
}

func autosaveRestore(c *cli.Context) error {
	ref, err := entityArg(c)
	if err != nil {
		return err
	}
	client, err := clientFrom(c)
	if err != nil {
		return err
	}

	q := scopeQuery(c, ref)
	q.Set("part", c.String("part"))
	if ts := c.Int64("timestamp"); ts > 0 {
		q.Set("timestamp", strconv.FormatInt(ts, 10))
	}

	var result map[string]any
	if err := client.Call(c.Context, http.MethodGet, "/v1/autosave/restore", q, nil, &result); err != nil {
		if connection.IsNotFound(err) {
			return fmt.Errorf("no autosaved state for %s", ref)
		}
		return err
	}
	return printResult(c, result)
}

func autosavePurge(c *cli.Context) error {
	ref, err := entityArg(c)
	if err != nil {
		return err
	}
	client, err := clientFrom(c)
	if err != nil {
		return err
	}

	body := map[string]string{
		"entity_type_id":  ref.Type,
		"entity_id":       ref.ID,
		"form_id":         c.String("form"),
		"form_session_id": c.String("session"),
		"langcode":        c.String("langcode"),
		"uid":             c.String("uid"),
	}
	if err := client.Call(c.Context, http.MethodPost, "/v1/autosave/purge", nil, body, nil); err != nil {
		return err
	}
	return printResult(c, map[string]any{"entity": ref.String(), "purged": true})
}
