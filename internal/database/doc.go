// Package database manages the SQLite catalog: artists, artworks,
// images, tags, and the jobs table the ledger runs on.
//
// Mutations happen inside batch transactions (BeginBatch/EndBatch) so
// that invariants spanning multiple tables, most importantly that an
// artwork's image_count equals its image rows, hold at every commit
// point. Reads are bounded by per-operation timeouts.
package database
