// Package middleware provides HTTP request logging and Prometheus
// metrics middleware for the API server.
package middleware
