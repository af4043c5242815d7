// Package logging provides leveled logging for the sync engine.
//
// The log level is read once from the LOG_LEVEL environment variable
// (debug, info, warn, error) or forced to debug with DEBUG=1. Messages
// below the configured level are discarded.
package logging
