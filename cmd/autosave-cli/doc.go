// Package main provides the entry point for autosave-cli.
//
// autosave-cli inspects and manages autosaved state on a running
// autosave-server:
//
//	autosave-cli autosave state node/42 --form node_article_edit_form
//	autosave-cli autosave restore node/42 --part entity -o json
//	autosave-cli admin gc
//	autosave-cli admin backup -f autosave.bak
package main
