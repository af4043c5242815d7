// Package ingest physically replaces an artwork's media files and
// atomically updates its catalog rows.
//
// The operation is a two-phase swap: existing media files are moved
// into a uniquely named backup directory, the incoming files are
// streamed in and probed, and the catalog is committed in one
// transaction. Any failure restores the directory from the backup.
//
// Known gap: there is no persisted manifest of moved files, so a
// process crash between the backup move and the restore can leave an
// orphaned "<dir>.backup-<uuid>" directory beside a target directory
// with missing files. Such directories are identifiable by name and
// must be reconciled manually.
package ingest
