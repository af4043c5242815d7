// Package sidecar parses the optional plain-text metadata file that may
// sit beside an artwork's media files. The format is read-only input to
// the sync engine; it is never written.
package sidecar
