package mediatypes

import (
	"path/filepath"
	"strings"
)

// MediaExtensions maps file extensions to whether they belong to an
// artwork's media set. Anything else found in an artwork directory
// (sidecar text files, thumbnails, partial downloads) is not media.
var MediaExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
	".zip":  true, // animation frame archives
}

// MimeTypes maps media extensions to their MIME types.
var MimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".zip":  "application/zip",
}

// IsMediaExt reports whether ext (lowercase, with leading dot) is a
// supported media extension.
func IsMediaExt(ext string) bool {
	return MediaExtensions[ext]
}

// IsMediaFile reports whether the filename has a supported media extension.
func IsMediaFile(name string) bool {
	return IsMediaExt(strings.ToLower(filepath.Ext(name)))
}

// GetMimeType returns the MIME type for a media extension, or
// "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[strings.ToLower(ext)]; ok {
		return mime
	}
	return "application/octet-stream"
}
