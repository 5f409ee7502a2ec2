// Package output renders autosave-cli results as a table, JSON or YAML.
//
// Values are normalized through their JSON form first, so json struct
// tags name table columns and YAML keys alike. Nested objects flatten to
// dotted keys in tables.
package output
