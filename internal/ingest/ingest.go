package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"gallery-sync/internal/collector"
	"gallery-sync/internal/database"
	"gallery-sync/internal/logging"
	"gallery-sync/internal/media"
	"gallery-sync/internal/mediatypes"
	"gallery-sync/internal/metrics"
)

// Sentinel errors for ingestion.
var (
	// ErrValidation indicates the target directory could not be
	// resolved from the artwork, the hint, or the artist.
	ErrValidation = errors.New("validation error")

	// ErrTransaction indicates the catalog commit failed. The physical
	// rollback has already restored the target directory when this is
	// returned.
	ErrTransaction = errors.New("transaction error")
)

// IncomingFile is one uploaded media file to be ingested.
type IncomingFile struct {
	Name   string
	Reader io.Reader
}

// FileSource yields incoming files one at a time. Next returns io.EOF
// after the last file. Files must be consumed in order; a multipart
// part becomes invalid once the next one is requested.
type FileSource interface {
	Next() (*IncomingFile, error)
}

// SliceSource is a FileSource over an in-memory slice.
type SliceSource struct {
	Files []IncomingFile
	pos   int
}

// Next implements FileSource.
func (s *SliceSource) Next() (*IncomingFile, error) {
	if s.pos >= len(s.Files) {
		return nil, io.EOF
	}
	f := &s.Files[s.pos]
	s.pos++
	return f, nil
}

// Ingestor replaces an artwork's media set on disk and in the catalog
// as one reversible operation.
//
// Callers must not run two Replace calls concurrently against the same
// artwork; the job ledger serializes job types, not artworks, so this
// is a caller obligation.
type Ingestor struct {
	db         *database.Database
	libraryDir string
}

// New creates an Ingestor over the given library root.
func New(db *database.Database, libraryDir string) *Ingestor {
	return &Ingestor{db: db, libraryDir: libraryDir}
}

// writtenFile is one streamed-in file with its probed metadata.
type writtenFile struct {
	path      string // absolute
	name      string
	pageIndex int
	parsed    bool
	width     int
	height    int
	size      int64
}

// Replace swaps the artwork's media set for the incoming files.
//
// Existing media files are moved into a uniquely named backup directory
// first. The incoming files are streamed to disk and probed, then the
// catalog rows are replaced in one transaction. Any failure after the
// backup triggers a full physical rollback: written files are deleted,
// backed-up files are moved back, and the target directory ends up
// byte-for-byte identical to its pre-call state. On success the backup
// is deleted asynchronously, best-effort.
//
// Returns the number of files ingested.
func (ing *Ingestor) Replace(ctx context.Context, artwork *database.Artwork, dirHint string, files FileSource) (int, error) {
	start := time.Now()

	targetDir, err := ing.resolveTargetDir(ctx, artwork, dirHint)
	if err != nil {
		return 0, err
	}
	logging.Info("Replacing media for artwork %s in %s", artwork.ExternalID, targetDir)

	backupDir, backedUp, err := ing.backupExisting(targetDir)
	if err != nil {
		return 0, err
	}

	written, err := ing.streamAndProbe(ctx, targetDir, artwork.ExternalID, files)
	if err == nil && len(written) == 0 {
		err = fmt.Errorf("no media files in upload: %w", ErrValidation)
	}
	if err == nil {
		err = ing.commit(artwork.ID, written)
	}

	if err != nil {
		ing.rollback(targetDir, backupDir, backedUp, written)
		metrics.IngestRunsTotal.WithLabelValues("rollback").Inc()
		return 0, err
	}

	if backupDir != "" {
		go removeBackup(backupDir)
	}

	metrics.IngestRunsTotal.WithLabelValues("success").Inc()
	metrics.IngestFilesWritten.Add(float64(len(written)))
	metrics.IngestDuration.Observe(time.Since(start).Seconds())
	logging.Info("Replaced media for artwork %s: %d files in %v",
		artwork.ExternalID, len(written), time.Since(start))
	return len(written), nil
}

// resolveTargetDir picks the directory the new media set lands in:
// the directory of the existing first image, then the caller's hint,
// then "{artistExternalId}/{artworkExternalId}".
func (ing *Ingestor) resolveTargetDir(ctx context.Context, artwork *database.Artwork, dirHint string) (string, error) {
	images, err := ing.db.GetArtworkImages(ctx, artwork.ID)
	if err != nil {
		return "", fmt.Errorf("failed to load existing images: %w", err)
	}
	if len(images) > 0 {
		return filepath.Join(ing.libraryDir, filepath.Dir(filepath.FromSlash(images[0].Path))), nil
	}

	if dirHint != "" {
		clean := filepath.Clean(filepath.FromSlash(dirHint))
		if filepath.IsAbs(clean) || clean == ".." || len(clean) >= 3 && clean[:3] == ".."+string(filepath.Separator) {
			return "", fmt.Errorf("directory hint %q escapes the library root: %w", dirHint, ErrValidation)
		}
		return filepath.Join(ing.libraryDir, clean), nil
	}

	artist, err := ing.db.GetArtistByID(ctx, artwork.ArtistID)
	if err != nil || artist.ExternalID == "" {
		return "", fmt.Errorf("artwork %s has no existing images, no hint, and no resolvable artist: %w",
			artwork.ExternalID, ErrValidation)
	}
	return filepath.Join(ing.libraryDir, fmt.Sprintf("%s (%s)", artist.Name, artist.ExternalID), artwork.ExternalID), nil
}

// backupExisting moves the target directory's media files into a fresh
// backup directory. Non-media files (sidecar metadata) stay in place.
// Returns the backup directory ("" when the target did not exist) and
// the names of the moved files.
func (ing *Ingestor) backupExisting(targetDir string) (string, []string, error) {
	entries, err := os.ReadDir(targetDir)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(targetDir, 0o755); mkErr != nil {
			return "", nil, fmt.Errorf("failed to create target directory: %w", mkErr)
		}
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to read target directory: %w", err)
	}

	backupDir := targetDir + ".backup-" + uuid.NewString()
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	var moved []string
	for _, entry := range entries {
		if entry.IsDir() || !mediatypes.IsMediaFile(entry.Name()) {
			continue
		}
		src := filepath.Join(targetDir, entry.Name())
		dst := filepath.Join(backupDir, entry.Name())
		if err := os.Rename(src, dst); err != nil {
			// Undo the partial backup before failing.
			restoreFiles(backupDir, targetDir, moved)
			if rmErr := os.Remove(backupDir); rmErr != nil {
				logging.Warn("failed to remove backup directory after aborted backup: %v", rmErr)
			}
			return "", nil, fmt.Errorf("failed to move %s to backup: %w", entry.Name(), err)
		}
		moved = append(moved, entry.Name())
	}

	return backupDir, moved, nil
}

// streamAndProbe writes the incoming files into the target directory
// and probes each for dimensions and size. Files whose names don't
// match the artwork's page pattern get sequential indexes after the
// parsable ones.
func (ing *Ingestor) streamAndProbe(ctx context.Context, targetDir, externalID string, files FileSource) ([]writtenFile, error) {
	var written []writtenFile

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		in, err := files.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return written, fmt.Errorf("failed to read incoming file: %w", err)
		}

		name := filepath.Base(in.Name)
		if name == "." || name == string(filepath.Separator) || !mediatypes.IsMediaFile(name) {
			return written, fmt.Errorf("unsupported media file %q: %w", in.Name, ErrValidation)
		}

		dst := filepath.Join(targetDir, name)
		size, err := writeFile(dst, in.Reader)
		if err != nil {
			// A partial file may be on disk; track it so rollback
			// deletes it.
			written = append(written, writtenFile{path: dst, name: name, size: size})
			return written, fmt.Errorf("failed to write %s: %w", name, err)
		}

		wf := writtenFile{path: dst, name: name, size: size}
		wf.pageIndex, wf.parsed = collector.ParsePageIndex(name, externalID)

		dims, err := media.Probe(dst)
		if err != nil {
			written = append(written, wf)
			return written, fmt.Errorf("failed to probe %s: %w", name, err)
		}
		wf.width, wf.height = dims.Width, dims.Height

		written = append(written, wf)
	}

	// Page order: parsable names by index, then the rest in upload
	// order after the highest parsed index.
	maxParsed := -1
	for i := range written {
		if written[i].parsed && written[i].pageIndex > maxParsed {
			maxParsed = written[i].pageIndex
		}
	}
	next := maxParsed + 1
	for i := range written {
		if !written[i].parsed {
			written[i].pageIndex = next
			next++
		}
	}

	sort.SliceStable(written, func(i, j int) bool {
		return written[i].pageIndex < written[j].pageIndex
	})
	return written, nil
}

func writeFile(path string, r io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return n, err
}

// commit replaces the artwork's image rows with the new set, updating
// image_count in the same transaction.
func (ing *Ingestor) commit(artworkID int64, written []writtenFile) error {
	images := make([]database.Image, len(written))
	for i, wf := range written {
		rel, err := filepath.Rel(ing.libraryDir, wf.path)
		if err != nil {
			rel = wf.path
		}
		images[i] = database.Image{
			ArtworkID: artworkID,
			Path:      filepath.ToSlash(rel),
			SortOrder: wf.pageIndex,
			Width:     wf.width,
			Height:    wf.height,
			Size:      wf.size,
		}
	}

	b, err := ing.db.BeginBatch()
	if err != nil {
		return fmt.Errorf("%w: failed to begin catalog transaction: %v", ErrTransaction, err)
	}
	err = ing.db.ReplaceArtworkImages(b, artworkID, images)
	if err := ing.db.EndBatch(b, err); err != nil {
		return fmt.Errorf("%w: %v", ErrTransaction, err)
	}
	return nil
}

// rollback restores the target directory to its pre-call state: every
// written file is deleted, every backed-up file is moved back, and the
// backup directory is removed.
func (ing *Ingestor) rollback(targetDir, backupDir string, backedUp []string, written []writtenFile) {
	logging.Warn("Rolling back media replacement in %s", targetDir)

	for _, wf := range written {
		if err := os.Remove(wf.path); err != nil && !os.IsNotExist(err) {
			logging.Error("rollback: failed to delete written file %s: %v", wf.path, err)
		}
	}

	if backupDir == "" {
		// Target directory was created by this call. Remove refuses
		// non-empty directories, so anything that appeared in the
		// meantime stays put.
		if err := os.Remove(targetDir); err != nil && !os.IsNotExist(err) {
			logging.Warn("rollback: could not remove created directory %s: %v", targetDir, err)
		}
		return
	}

	restoreFiles(backupDir, targetDir, backedUp)

	if err := os.Remove(backupDir); err != nil {
		logging.Error("rollback: failed to remove backup directory %s: %v", backupDir, err)
	}
}

func restoreFiles(backupDir, targetDir string, names []string) {
	for _, name := range names {
		src := filepath.Join(backupDir, name)
		dst := filepath.Join(targetDir, name)
		if err := os.Rename(src, dst); err != nil {
			logging.Error("rollback: failed to restore %s: %v", name, err)
		}
	}
}
