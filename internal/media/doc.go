// Package media probes media files for their dimensions during
// ingestion. Decoding is header-only where possible.
package media
