// Package command provides the autosave-cli command tree on urfave/cli/v2.
//
//   - autosave: state, restore and purge of one entity's autosaved states
//   - admin: lifecycle purge, garbage collection and backup download
//   - system: health, readiness, settings and status summary
//
// Every command prints through the -o formatter: table, json or yaml.
package command
