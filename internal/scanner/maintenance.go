package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gallery-sync/internal/jobs"
	"gallery-sync/internal/logging"
)

// RefillMetaSource back-fills the meta_source column for artworks whose
// sidecar file exists on disk but is not recorded in the catalog. Runs
// under the ledger like a scan: cancellation is polled between artworks.
func (s *Scanner) RefillMetaSource(ctx context.Context, onProgress ProgressFunc, checkCancelled CancelFunc) (*jobs.RefillSummary, error) {
	if onProgress == nil {
		onProgress = func(Progress) {}
	}
	if checkCancelled == nil {
		checkCancelled = func() bool { return false }
	}
	startTime := time.Now()

	artworks, err := s.db.ListArtworksMissingMetaSource(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list artworks missing meta source: %w", err)
	}

	onProgress(Progress{
		Phase:      PhaseCounting,
		Message:    fmt.Sprintf("%d artworks without a recorded sidecar", len(artworks)),
		Total:      len(artworks),
		ETASeconds: -1,
	})

	summary := &jobs.RefillSummary{Examined: len(artworks)}

	for i := range artworks {
		if checkCancelled() {
			return nil, jobs.ErrCancelled
		}
		aw := &artworks[i]

		dir, err := s.artworkDirOnDisk(ctx, aw.ID)
		if err != nil {
			logging.Debug("refill: no directory for artwork %s: %v", aw.ExternalID, err)
			continue
		}

		_, metaSource := s.readSidecar(dir, aw.ExternalID, aw.Title)
		if metaSource == "" {
			continue
		}

		b, err := s.db.BeginBatch()
		if err != nil {
			return nil, err
		}
		err = s.db.UpdateArtworkMetaSource(b, aw.ID, metaSource)
		if err := s.db.EndBatch(b, err); err != nil {
			return nil, fmt.Errorf("failed to record meta source for %s: %w", aw.ExternalID, err)
		}
		summary.Filled++

		pct := scalePercent(i+1, len(artworks), 0, 100)
		onProgress(Progress{
			Phase:      PhaseScanning,
			Message:    fmt.Sprintf("Refilled %d sidecar paths", summary.Filled),
			Current:    i + 1,
			Total:      len(artworks),
			Percentage: pct,
			ETASeconds: estimateETA(startTime, pct),
		})
	}

	logging.Info("Meta source refill complete: %d/%d filled", summary.Filled, summary.Examined)
	return summary, nil
}

// artworkDirOnDisk resolves an artwork's directory from its first
// stored image path.
func (s *Scanner) artworkDirOnDisk(ctx context.Context, artworkID int64) (string, error) {
	images, err := s.db.GetArtworkImages(ctx, artworkID)
	if err != nil {
		return "", err
	}
	if len(images) == 0 {
		return "", fmt.Errorf("artwork has no images")
	}
	return filepath.Join(s.libraryDir, filepath.Dir(filepath.FromSlash(images[0].Path))), nil
}

// MigrateImagePaths normalizes legacy stored image paths: backslash
// separators and "./" prefixes from older importers are rewritten to
// clean slash-separated catalog-relative paths. Rows whose normalized
// file actually exists are rewritten; the rest are left alone and
// logged.
func (s *Scanner) MigrateImagePaths(ctx context.Context, onProgress ProgressFunc, checkCancelled CancelFunc) (*jobs.MigrationSummary, error) {
	if onProgress == nil {
		onProgress = func(Progress) {}
	}
	if checkCancelled == nil {
		checkCancelled = func() bool { return false }
	}
	startTime := time.Now()

	images, err := s.db.ListImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	onProgress(Progress{
		Phase:      PhaseCounting,
		Message:    fmt.Sprintf("%d image rows to examine", len(images)),
		Total:      len(images),
		ETASeconds: -1,
	})

	summary := &jobs.MigrationSummary{Examined: len(images)}

	for i := range images {
		if i%100 == 0 && checkCancelled() {
			return nil, jobs.ErrCancelled
		}
		img := &images[i]

		normalized := normalizePath(img.Path)
		if normalized == img.Path {
			continue
		}

		if _, err := os.Stat(filepath.Join(s.libraryDir, filepath.FromSlash(normalized))); err != nil {
			logging.Warn("migration: normalized path %s not on disk, leaving row %d untouched", normalized, img.ID)
			continue
		}

		b, err := s.db.BeginBatch()
		if err != nil {
			return nil, err
		}
		err = s.db.UpdateImagePath(b, img.ID, normalized)
		if err := s.db.EndBatch(b, err); err != nil {
			return nil, fmt.Errorf("failed to rewrite image path: %w", err)
		}
		summary.Rewritten++

		pct := scalePercent(i+1, len(images), 0, 100)
		onProgress(Progress{
			Phase:      PhaseScanning,
			Message:    fmt.Sprintf("Rewrote %d image paths", summary.Rewritten),
			Current:    i + 1,
			Total:      len(images),
			Percentage: pct,
			ETASeconds: estimateETA(startTime, pct),
		})
	}

	logging.Info("Path migration complete: %d/%d rewritten", summary.Rewritten, summary.Examined)
	return summary, nil
}

func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return p
}
