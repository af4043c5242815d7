// Package mediatypes defines the file extensions that make up an
// artwork's media set and their MIME types.
package mediatypes
