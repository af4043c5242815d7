// Package scanner walks the library tree (artists -> artworks -> media
// files), diffs what it finds against the catalog, and persists changes
// in batched transactions.
//
// A scan runs in phases: counting, scanning, creating, cleanup. Bad
// directories are logged and skipped, never fatal. Cancellation is
// cooperative and polled between artworks; batches already committed
// when a scan is cancelled stay committed, which makes scans resumable
// and idempotent rather than atomic.
package scanner
