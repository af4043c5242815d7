// Package startup loads and validates configuration from environment
// variables and provides startup/shutdown logging helpers and build
// information.
package startup
