package collector

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gallery-sync/internal/logging"
	"gallery-sync/internal/mediatypes"
)

// MediaFile describes one qualifying media file inside an artwork directory.
type MediaFile struct {
	Name      string `json:"name"`
	Path      string `json:"path"` // absolute path on disk
	PageIndex int    `json:"pageIndex"`
	Size      int64  `json:"size"`
}

// Result is the outcome of collecting one artwork directory. A failed
// collection (unreadable directory) is reported with OK=false rather
// than an error return so callers can log it and keep scanning.
type Result struct {
	OK    bool
	Files []MediaFile
	Err   error
}

// ParsePageIndex derives the page index of filename within the artwork
// identified by externalID. It returns (0, true) for an exact
// "{externalID}{ext}" match, (n, true) for "{externalID}_p{n}{ext}",
// and (0, false) for anything else. The exact form is checked first,
// so "123.jpg" is page 0 even though "123_p0.jpg" may also exist.
// Only supported media extensions qualify.
func ParsePageIndex(filename, externalID string) (int, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !mediatypes.IsMediaExt(ext) {
		return 0, false
	}

	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	if base == externalID {
		return 0, true
	}

	rest, ok := strings.CutPrefix(base, externalID+"_p")
	if !ok || rest == "" {
		return 0, false
	}

	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Collect enumerates the media files of one artwork directory, ordered
// by page index. Filenames that do not match the artwork's naming
// pattern are ignored. An unreadable directory is a soft failure: the
// result carries OK=false and the underlying error, and the caller is
// expected to log it and continue with the next artwork.
func Collect(dir, externalID string) Result {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Result{OK: false, Err: err}
	}

	var files []MediaFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		page, ok := ParsePageIndex(entry.Name(), externalID)
		if !ok {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			logging.Warn("skipping unstatable file %s: %v", filepath.Join(dir, entry.Name()), err)
			continue
		}

		files = append(files, MediaFile{
			Name:      entry.Name(),
			Path:      filepath.Join(dir, entry.Name()),
			PageIndex: page,
			Size:      info.Size(),
		})
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].PageIndex != files[j].PageIndex {
			return files[i].PageIndex < files[j].PageIndex
		}
		return files[i].Name < files[j].Name
	})

	return Result{OK: true, Files: files}
}
