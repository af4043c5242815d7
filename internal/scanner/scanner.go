package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"gallery-sync/internal/collector"
	"gallery-sync/internal/database"
	"gallery-sync/internal/jobs"
	"gallery-sync/internal/logging"
	"gallery-sync/internal/metrics"
	"gallery-sync/internal/sidecar"
	"gallery-sync/internal/workers"
)

const (
	// Artworks to persist per transaction. Bounds write-lock duration.
	defaultBatchSize = 50

	// Cap on concurrent directory collection within one artist.
	maxCollectWorkers = 8

	// Delay between persisted batches to let readers through.
	batchDelay = 10 * time.Millisecond
)

// Artist directories are named "{displayName} ({externalUserId})".
var artistDirPattern = regexp.MustCompile(`^(.+) \(([^()]+)\)$`)

// Artwork directories start with the numeric external id, optionally
// followed by a space and the title.
var artworkDirPattern = regexp.MustCompile(`^(\d+)(?: (.*))?$`)

// Config controls scanner behavior.
type Config struct {
	// BatchSize is the number of artworks persisted per transaction.
	BatchSize int
	// RemoveMissing removes catalog rows whose backing directory is
	// gone during full-scan cleanup. When false they are only logged.
	RemoveMissing bool
}

// Options select what one scan run covers.
type Options struct {
	// ForceUpdate re-applies metadata even when no difference is
	// detected.
	ForceUpdate bool
	// RestrictToPaths limits the scan to the given library-relative
	// artist directories ("list" scan). A list scan never runs the
	// cleanup phase.
	RestrictToPaths []string
}

// Phase identifies the stage a progress event belongs to.
type Phase string

const (
	// PhaseCounting establishes the total unit of work.
	PhaseCounting Phase = "counting"
	// PhaseScanning walks directories and diffs against the catalog.
	PhaseScanning Phase = "scanning"
	// PhaseCreating persists new and changed artworks in batches.
	PhaseCreating Phase = "creating"
	// PhaseCleanup removes artworks whose directory disappeared.
	PhaseCleanup Phase = "cleanup"
)

// Progress is one progress event.
type Progress struct {
	Phase      Phase  `json:"phase"`
	Message    string `json:"message"`
	Current    int    `json:"current"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
	// ETASeconds extrapolates linearly from elapsed time and the
	// current/total ratio. Negative means unknown.
	ETASeconds int `json:"estimatedSecondsRemaining"`
}

// Result summarizes one scan run.
type Result struct {
	New     int `json:"new"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// ProgressFunc receives progress events during a scan.
type ProgressFunc func(Progress)

// CancelFunc is polled between artworks; returning true stops the scan
// at the next safe point.
type CancelFunc func() bool

// Scanner reconciles the library directory tree against the catalog.
type Scanner struct {
	db         *database.Database
	libraryDir string
	config     Config
}

// New creates a Scanner over the given library root.
func New(db *database.Database, libraryDir string, config Config) *Scanner {
	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}
	return &Scanner{
		db:         db,
		libraryDir: libraryDir,
		config:     config,
	}
}

// pendingArtwork is one new or changed artwork waiting for the creating
// phase.
type pendingArtwork struct {
	artist  database.Artist
	artwork database.Artwork
	images  []database.Image
	isNew   bool
}

// Scan walks the library tree, diffs discovered artworks against the
// catalog, and persists changes in batches. Cancellation is observed
// between artworks; committed batches stay committed (a cancelled scan
// is resumable, not rolled back).
func (s *Scanner) Scan(ctx context.Context, opts Options, onProgress ProgressFunc, checkCancelled CancelFunc) (*Result, error) {
	metrics.ScanIsRunning.Set(1)
	defer metrics.ScanIsRunning.Set(0)
	metrics.ScanRunsTotal.Inc()

	startTime := time.Now()
	if onProgress == nil {
		onProgress = func(Progress) {}
	}
	if checkCancelled == nil {
		checkCancelled = func() bool { return false }
	}

	result := &Result{}
	listScan := len(opts.RestrictToPaths) > 0

	// Counting phase
	artistDirs, err := s.countWork(opts)
	if err != nil {
		return nil, err
	}
	onProgress(Progress{
		Phase:      PhaseCounting,
		Message:    fmt.Sprintf("Found %d artist directories", len(artistDirs)),
		Total:      len(artistDirs),
		ETASeconds: -1,
	})

	stored, err := s.db.ListArtworkSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog baseline: %w", err)
	}

	// Scanning phase
	seen := make(map[string]bool) // external ids discovered this run
	var pending []pendingArtwork

	for i, artistDir := range artistDirs {
		if checkCancelled() {
			return nil, jobs.ErrCancelled
		}

		s.scanArtistDir(artistDir, opts.ForceUpdate, stored, seen, &pending, result)

		pct := scalePercent(i+1, len(artistDirs), 0, 75)
		onProgress(Progress{
			Phase:      PhaseScanning,
			Message:    fmt.Sprintf("Scanned %s", filepath.Base(artistDir)),
			Current:    i + 1,
			Total:      len(artistDirs),
			Percentage: pct,
			ETASeconds: estimateETA(startTime, pct),
		})
	}

	// Creating phase
	if err := s.persistPending(ctx, pending, result, startTime, onProgress, checkCancelled); err != nil {
		return nil, err
	}

	// Cleanup phase: full scans only. A list scan has not seen the
	// whole library, so absence proves nothing.
	if !listScan {
		if err := s.cleanupMissing(ctx, stored, seen, result, startTime, onProgress, checkCancelled); err != nil {
			return nil, err
		}
	}

	duration := time.Since(startTime)
	metrics.ScanLastRunTimestamp.Set(float64(time.Now().Unix()))
	metrics.ScanLastRunDuration.Set(duration.Seconds())

	logging.Info("Scan complete in %v: %d new, %d updated, %d removed, %d skipped, %d errors",
		duration, result.New, result.Updated, result.Removed, result.Skipped, result.Errors)
	return result, nil
}

// countWork enumerates the artist directories this run will cover.
func (s *Scanner) countWork(opts Options) ([]string, error) {
	if len(opts.RestrictToPaths) > 0 {
		dirs := make([]string, 0, len(opts.RestrictToPaths))
		for _, rel := range opts.RestrictToPaths {
			dirs = append(dirs, filepath.Join(s.libraryDir, rel))
		}
		return dirs, nil
	}

	entries, err := os.ReadDir(s.libraryDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read library root: %w", err)
	}

	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dirs = append(dirs, filepath.Join(s.libraryDir, entry.Name()))
	}
	sort.Strings(dirs)
	return dirs, nil
}

// collectedDir is the filesystem-derived view of one artwork directory,
// before any classification against the catalog.
type collectedDir struct {
	name       string
	externalID string
	malformed  bool
	collectErr error
	artwork    database.Artwork
	images     []database.Image
	imagePaths []string
}

// scanArtistDir processes one artist directory. Malformed directories
// are logged and skipped; they never abort the run.
func (s *Scanner) scanArtistDir(dir string, force bool, stored map[string]*database.ArtworkSummary,
	seen map[string]bool, pending *[]pendingArtwork, result *Result) {

	m := artistDirPattern.FindStringSubmatch(filepath.Base(dir))
	if m == nil {
		logging.Warn("Skipping directory with unrecognized name: %s", filepath.Base(dir))
		result.Errors++
		metrics.ScanErrorsTotal.Inc()
		return
	}
	artist := database.Artist{Name: m[1], ExternalID: m[2], Username: m[1]}

	entries, err := os.ReadDir(dir)
	if err != nil {
		logging.Warn("Skipping unreadable artist directory %s: %v", dir, err)
		result.Errors++
		metrics.ScanErrorsTotal.Inc()
		return
	}

	var artworkDirs []os.DirEntry
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			artworkDirs = append(artworkDirs, entry)
		}
	}

	// Collect artwork directories with a bounded worker window to cap
	// open file handles. Workers only touch the filesystem; duplicate
	// detection and catalog diffing run afterwards in directory order,
	// so which of two same-id directories wins never depends on
	// scheduling.
	numWorkers := workers.ForIO(maxCollectWorkers)
	if numWorkers > len(artworkDirs) {
		numWorkers = len(artworkDirs)
	}

	work := make(chan int)
	ordered := make([]*collectedDir, len(artworkDirs))
	var wg sync.WaitGroup

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				ordered[idx] = s.collectArtworkDir(dir, artworkDirs[idx].Name())
			}
		}()
	}

	for i := range artworkDirs {
		work <- i
	}
	close(work)
	wg.Wait()

	for _, c := range ordered {
		if c.malformed {
			logging.Warn("Skipping artwork directory with unrecognized name: %s/%s", filepath.Base(dir), c.name)
			result.Errors++
			metrics.ScanErrorsTotal.Inc()
			continue
		}
		if c.collectErr != nil {
			logging.Warn("Failed to collect media in %s: %v", filepath.Join(dir, c.name), c.collectErr)
			result.Errors++
			metrics.ScanErrorsTotal.Inc()
			continue
		}
		if seen[c.externalID] {
			logging.Warn("Duplicate artwork id %s at %s/%s, first occurrence wins", c.externalID, filepath.Base(dir), c.name)
			metrics.ScanArtworksProcessed.WithLabelValues("conflict").Inc()
			continue
		}
		seen[c.externalID] = true

		prev, exists := stored[c.externalID]
		switch {
		case !exists:
			result.New++
			metrics.ScanArtworksProcessed.WithLabelValues("new").Inc()
			*pending = append(*pending, pendingArtwork{artist: artist, artwork: c.artwork, images: c.images, isNew: true})
		case force || summaryChanged(prev, &c.artwork, c.imagePaths):
			result.Updated++
			metrics.ScanArtworksProcessed.WithLabelValues("updated").Inc()
			*pending = append(*pending, pendingArtwork{artist: artist, artwork: c.artwork, images: c.images})
		default:
			result.Skipped++
			metrics.ScanArtworksProcessed.WithLabelValues("skipped").Inc()
		}
	}
}

// collectArtworkDir gathers sidecar metadata and media files for one
// artwork directory. It never touches shared scan state.
func (s *Scanner) collectArtworkDir(artistDir, name string) *collectedDir {
	c := &collectedDir{name: name}

	m := artworkDirPattern.FindStringSubmatch(name)
	if m == nil {
		c.malformed = true
		return c
	}
	c.externalID = m[1]
	fallbackTitle := m[2]
	if fallbackTitle == "" {
		fallbackTitle = c.externalID
	}

	dir := filepath.Join(artistDir, name)

	meta, metaSource := s.readSidecar(dir, c.externalID, fallbackTitle)

	coll := collector.Collect(dir, c.externalID)
	if !coll.OK {
		c.collectErr = coll.Err
		return c
	}

	c.imagePaths = make([]string, len(coll.Files))
	c.images = make([]database.Image, len(coll.Files))
	for i, f := range coll.Files {
		rel, err := filepath.Rel(s.libraryDir, f.Path)
		if err != nil {
			rel = f.Path
		}
		rel = filepath.ToSlash(rel)
		c.imagePaths[i] = rel
		c.images[i] = database.Image{
			Path:      rel,
			SortOrder: f.PageIndex,
			Size:      f.Size,
		}
	}

	var dirCreated time.Time
	if info, err := os.Stat(dir); err == nil {
		dirCreated = info.ModTime()
	}

	c.artwork = database.Artwork{
		ExternalID:         c.externalID,
		Title:              meta.Title,
		Description:        meta.Description,
		Tags:               meta.Tags,
		MetaSource:         metaSource,
		DirectoryCreatedAt: dirCreated,
	}
	return c
}

// readSidecar loads artwork metadata from the sidecar file if present.
// Parse failures fall back to the filename-derived title with an empty
// description.
func (s *Scanner) readSidecar(dir, externalID, fallbackTitle string) (sidecar.Meta, string) {
	for _, candidate := range []string{externalID + ".txt", "meta.txt"} {
		path := filepath.Join(dir, candidate)
		if _, err := os.Stat(path); err != nil {
			continue
		}

		meta, err := sidecar.ParseFile(path)
		if err != nil {
			logging.Warn("Failed to parse sidecar %s: %v", path, err)
			break
		}
		if meta.Title == "" {
			meta.Title = fallbackTitle
		}

		rel, err := filepath.Rel(s.libraryDir, path)
		if err != nil {
			rel = path
		}
		return meta, filepath.ToSlash(rel)
	}
	return sidecar.Meta{Title: fallbackTitle}, ""
}

// summaryChanged reports whether the discovered artwork differs from
// the stored one in metadata or media file set.
func summaryChanged(prev *database.ArtworkSummary, next *database.Artwork, imagePaths []string) bool {
	if prev.Title != next.Title || prev.Description != next.Description || prev.MetaSource != next.MetaSource {
		return true
	}
	if !equalStrings(prev.ImagePaths, imagePaths) {
		return true
	}

	prevTags := append([]string(nil), prev.Tags...)
	nextTags := append([]string(nil), next.Tags...)
	sort.Strings(prevTags)
	sort.Strings(nextTags)
	return !equalStrings(prevTags, nextTags)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// persistPending writes new/changed artworks in batched transactions,
// recomputing image_count inside each transaction.
func (s *Scanner) persistPending(ctx context.Context, pending []pendingArtwork, result *Result,
	startTime time.Time, onProgress ProgressFunc, checkCancelled CancelFunc) error {

	total := len(pending)
	for i := 0; i < total; i += s.config.BatchSize {
		if checkCancelled() {
			return jobs.ErrCancelled
		}

		end := i + s.config.BatchSize
		if end > total {
			end = total
		}

		if err := s.persistBatch(ctx, pending[i:end]); err != nil {
			return fmt.Errorf("failed to persist batch: %w", err)
		}

		pct := scalePercent(end, total, 75, 95)
		onProgress(Progress{
			Phase:      PhaseCreating,
			Message:    fmt.Sprintf("Persisted %d/%d artworks", end, total),
			Current:    end,
			Total:      total,
			Percentage: pct,
			ETASeconds: estimateETA(startTime, pct),
		})

		time.Sleep(batchDelay)
	}

	if total == 0 {
		onProgress(Progress{
			Phase:      PhaseCreating,
			Message:    "No changes to persist",
			Percentage: 95,
			ETASeconds: estimateETA(startTime, 95),
		})
	}
	return nil
}

func (s *Scanner) persistBatch(ctx context.Context, batch []pendingArtwork) error {
	b, err := s.db.BeginBatch()
	if err != nil {
		return err
	}

	err = func() error {
		for i := range batch {
			pa := &batch[i]

			artistID, err := s.db.UpsertArtist(b, &pa.artist)
			if err != nil {
				return err
			}
			pa.artwork.ArtistID = artistID

			artworkID, err := s.db.UpsertArtwork(b, &pa.artwork)
			if err != nil {
				return err
			}

			if err := s.db.ReplaceArtworkImages(b, artworkID, pa.images); err != nil {
				return err
			}
			if err := s.db.ReplaceArtworkTags(b, artworkID, pa.artwork.Tags); err != nil {
				return err
			}
		}
		return nil
	}()

	return s.db.EndBatch(b, err)
}

// cleanupMissing removes (or reports, depending on policy) stored
// artworks whose backing directory was not seen during this run.
func (s *Scanner) cleanupMissing(ctx context.Context, stored map[string]*database.ArtworkSummary,
	seen map[string]bool, result *Result, startTime time.Time,
	onProgress ProgressFunc, checkCancelled CancelFunc) error {

	var missing []int64
	for externalID, summary := range stored {
		if !seen[externalID] {
			missing = append(missing, summary.ID)
		}
	}

	onProgress(Progress{
		Phase:      PhaseCleanup,
		Message:    fmt.Sprintf("%d artworks missing from disk", len(missing)),
		Total:      len(missing),
		Percentage: 95,
		ETASeconds: estimateETA(startTime, 95),
	})

	if len(missing) == 0 {
		return nil
	}

	if !s.config.RemoveMissing {
		logging.Info("Cleanup policy keep: leaving %d orphaned artworks in catalog", len(missing))
		return nil
	}

	for i := 0; i < len(missing); i += s.config.BatchSize {
		if checkCancelled() {
			return jobs.ErrCancelled
		}

		end := i + s.config.BatchSize
		if end > len(missing) {
			end = len(missing)
		}

		b, err := s.db.BeginBatch()
		if err != nil {
			return err
		}
		removed, err := s.db.DeleteArtworks(b, missing[i:end])
		if err := s.db.EndBatch(b, err); err != nil {
			return fmt.Errorf("failed to remove missing artworks: %w", err)
		}

		result.Removed += int(removed)
		metrics.ScanArtworksProcessed.WithLabelValues("removed").Add(float64(removed))

		pct := scalePercent(end, len(missing), 95, 100)
		onProgress(Progress{
			Phase:      PhaseCleanup,
			Message:    fmt.Sprintf("Removed %d/%d missing artworks", end, len(missing)),
			Current:    end,
			Total:      len(missing),
			Percentage: pct,
			ETASeconds: estimateETA(startTime, pct),
		})
	}

	return nil
}

// scalePercent maps current/total onto the [lo, hi] percentage band.
func scalePercent(current, total, lo, hi int) int {
	if total <= 0 {
		return hi
	}
	return lo + (hi-lo)*current/total
}

// estimateETA extrapolates remaining seconds linearly from elapsed time
// and overall percentage. Returns -1 while the ratio is meaningless.
func estimateETA(start time.Time, percent int) int {
	if percent <= 0 {
		return -1
	}
	elapsed := time.Since(start).Seconds()
	return int(elapsed * float64(100-percent) / float64(percent))
}
