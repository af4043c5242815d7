// Package metrics declares and registers all Prometheus metrics for the
// sync engine: HTTP, database, job ledger, scanner, ingestion, and
// progress streaming instrumentation.
package metrics
