// Package workers sizes worker pools for scan-time filesystem work,
// respecting container CPU limits.
package workers
