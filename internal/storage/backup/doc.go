// Package backup writes scheduled backups of the snapshot store to disk.
//
// A backup file is the backend's native backup stream framed as:
//
//	magic "ASBACKUP" | header length (uint32 BE) | header JSON | payload | SHA-256
//
// The trailer covers every byte before it. Files are written to a
// temporary name, synced and renamed, so a crash never leaves a partial
// backup under a final name. Prune keeps the newest RetentionCount files
// and every file younger than RetentionDays.
package backup
