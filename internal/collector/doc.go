// Package collector enumerates and orders the media files belonging to
// a single artwork directory.
//
// A file belongs to artwork "123" only if it is named "123.jpg" (page 0)
// or "123_p<N>.jpg" (page N) with a supported media extension; everything
// else in the directory is ignored. Results are ordered by page index.
package collector
