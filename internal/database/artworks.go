package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// UpsertArtist inserts or updates an artist by external id within a
// batch transaction and returns the row id.
func (d *Database) UpsertArtist(b *Batch, artist *Artist) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_artist", start, err) }()

	_, err = b.Tx.ExecContext(context.Background(), `
		INSERT INTO artists (external_id, name, username)
		VALUES (?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			name = excluded.name,
			username = excluded.username,
			updated_at = strftime('%s', 'now')
	`, artist.ExternalID, artist.Name, artist.Username)
	if err != nil {
		return 0, err
	}

	var id int64
	err = b.Tx.QueryRowContext(context.Background(),
		"SELECT id FROM artists WHERE external_id = ?", artist.ExternalID).Scan(&id)
	return id, err
}

// UpsertArtwork inserts or updates an artwork's metadata by external id
// and returns the row id. Image rows and image_count are not touched
// here; use ReplaceArtworkImages in the same transaction for those.
func (d *Database) UpsertArtwork(b *Batch, artwork *Artwork) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_artwork", start, err) }()

	_, err = b.Tx.ExecContext(context.Background(), `
		INSERT INTO artworks (external_id, title, description, artist_id, meta_source, directory_created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			artist_id = excluded.artist_id,
			meta_source = excluded.meta_source,
			directory_created_at = excluded.directory_created_at,
			updated_at = strftime('%s', 'now')
	`, artwork.ExternalID, artwork.Title, artwork.Description, artwork.ArtistID,
		artwork.MetaSource, artwork.DirectoryCreatedAt.Unix())
	if err != nil {
		return 0, err
	}

	var id int64
	err = b.Tx.QueryRowContext(context.Background(),
		"SELECT id FROM artworks WHERE external_id = ?", artwork.ExternalID).Scan(&id)
	return id, err
}

// ReplaceArtworkImages replaces every image row of an artwork and sets
// image_count to the new row count inside the same transaction, so the
// count can never drift from the actual rows.
func (d *Database) ReplaceArtworkImages(b *Batch, artworkID int64, images []Image) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("replace_images", start, err) }()

	ctx := context.Background()

	if _, err = b.Tx.ExecContext(ctx, "DELETE FROM images WHERE artwork_id = ?", artworkID); err != nil {
		return err
	}

	for i := range images {
		img := &images[i]
		if _, err = b.Tx.ExecContext(ctx, `
			INSERT INTO images (artwork_id, path, sort_order, width, height, size)
			VALUES (?, ?, ?, ?, ?, ?)
		`, artworkID, img.Path, img.SortOrder, img.Width, img.Height, img.Size); err != nil {
			return err
		}
	}

	_, err = b.Tx.ExecContext(ctx, `
		UPDATE artworks
		SET image_count = ?, updated_at = strftime('%s', 'now')
		WHERE id = ?
	`, len(images), artworkID)
	return err
}

// ReplaceArtworkTags replaces the tag set of an artwork.
func (d *Database) ReplaceArtworkTags(b *Batch, artworkID int64, tags []string) error {
	ctx := context.Background()

	if _, err := b.Tx.ExecContext(ctx, "DELETE FROM artwork_tags WHERE artwork_id = ?", artworkID); err != nil {
		return err
	}

	for _, tag := range tags {
		if _, err := b.Tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO artwork_tags (artwork_id, tag) VALUES (?, ?)
		`, artworkID, tag); err != nil {
			return err
		}
	}
	return nil
}

// GetArtworkByExternalID retrieves one artwork, including its tags.
// Returns sql.ErrNoRows if the artwork does not exist.
func (d *Database) GetArtworkByExternalID(ctx context.Context, externalID string) (*Artwork, error) {
	return d.getArtwork(ctx, "external_id = ?", externalID)
}

// GetArtworkByID retrieves one artwork by row id, including its tags.
func (d *Database) GetArtworkByID(ctx context.Context, id int64) (*Artwork, error) {
	return d.getArtwork(ctx, "id = ?", id)
}

func (d *Database) getArtwork(ctx context.Context, where string, arg interface{}) (*Artwork, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_artwork", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var aw Artwork
	var dirCreated int64
	err = d.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, external_id, title, description, artist_id, image_count, meta_source, directory_created_at
		FROM artworks WHERE %s
	`, where), arg).Scan(
		&aw.ID, &aw.ExternalID, &aw.Title, &aw.Description,
		&aw.ArtistID, &aw.ImageCount, &aw.MetaSource, &dirCreated,
	)
	if err != nil {
		return nil, err
	}
	aw.DirectoryCreatedAt = time.Unix(dirCreated, 0)

	rows, err := d.db.QueryContext(ctx, "SELECT tag FROM artwork_tags WHERE artwork_id = ? ORDER BY tag", aw.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	for rows.Next() {
		var tag string
		if err = rows.Scan(&tag); err != nil {
			return nil, err
		}
		aw.Tags = append(aw.Tags, tag)
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}
	return &aw, nil
}

// GetArtistByID retrieves one artist by row id.
func (d *Database) GetArtistByID(ctx context.Context, id int64) (*Artist, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_artist", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var a Artist
	err = d.db.QueryRowContext(ctx,
		"SELECT id, external_id, name, username FROM artists WHERE id = ?", id,
	).Scan(&a.ID, &a.ExternalID, &a.Name, &a.Username)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetArtworkImages returns an artwork's image rows ordered by sort_order.
func (d *Database) GetArtworkImages(ctx context.Context, artworkID int64) ([]Image, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_images", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, artwork_id, path, sort_order, width, height, size
		FROM images WHERE artwork_id = ? ORDER BY sort_order, path
	`, artworkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var images []Image
	for rows.Next() {
		var img Image
		if err = rows.Scan(&img.ID, &img.ArtworkID, &img.Path, &img.SortOrder,
			&img.Width, &img.Height, &img.Size); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	err = rows.Err()
	return images, err
}

// ListArtworkSummaries returns every stored artwork keyed by external id,
// with ordered image paths and tags. This is the scanner's diff baseline;
// one bulk read keeps the scanning phase off the database.
func (d *Database) ListArtworkSummaries(ctx context.Context) (map[string]*ArtworkSummary, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_summaries", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, external_id, title, description, meta_source FROM artworks
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	byID := make(map[int64]*ArtworkSummary)
	summaries := make(map[string]*ArtworkSummary)
	for rows.Next() {
		s := &ArtworkSummary{}
		if err = rows.Scan(&s.ID, &s.ExternalID, &s.Title, &s.Description, &s.MetaSource); err != nil {
			return nil, err
		}
		byID[s.ID] = s
		summaries[s.ExternalID] = s
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	imgRows, err := d.db.QueryContext(ctx, `
		SELECT artwork_id, path FROM images ORDER BY artwork_id, sort_order, path
	`)
	if err != nil {
		return nil, err
	}
	defer imgRows.Close() //nolint:errcheck // read-only cursor

	for imgRows.Next() {
		var artworkID int64
		var path string
		if err = imgRows.Scan(&artworkID, &path); err != nil {
			return nil, err
		}
		if s, ok := byID[artworkID]; ok {
			s.ImagePaths = append(s.ImagePaths, path)
		}
	}
	if err = imgRows.Err(); err != nil {
		return nil, err
	}

	tagRows, err := d.db.QueryContext(ctx, `
		SELECT artwork_id, tag FROM artwork_tags ORDER BY artwork_id, tag
	`)
	if err != nil {
		return nil, err
	}
	defer tagRows.Close() //nolint:errcheck // read-only cursor

	for tagRows.Next() {
		var artworkID int64
		var tag string
		if err = tagRows.Scan(&artworkID, &tag); err != nil {
			return nil, err
		}
		if s, ok := byID[artworkID]; ok {
			s.Tags = append(s.Tags, tag)
		}
	}
	err = tagRows.Err()
	return summaries, err
}

// DeleteArtworks removes artwork rows (and, via cascade, their images
// and tags) inside a batch transaction. Returns rows removed.
func (d *Database) DeleteArtworks(b *Batch, ids []int64) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("cleanup_missing", start, err) }()

	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	var result sql.Result
	result, err = b.Tx.ExecContext(context.Background(),
		"DELETE FROM artworks WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// UpdateArtworkMetaSource sets the sidecar path of one artwork.
func (d *Database) UpdateArtworkMetaSource(b *Batch, artworkID int64, metaSource string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_meta_source", start, err) }()

	_, err = b.Tx.ExecContext(context.Background(), `
		UPDATE artworks SET meta_source = ?, updated_at = strftime('%s', 'now') WHERE id = ?
	`, metaSource, artworkID)
	return err
}

// UpdateImagePath rewrites the stored path of one image row.
func (d *Database) UpdateImagePath(b *Batch, imageID int64, path string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_image_path", start, err) }()

	_, err = b.Tx.ExecContext(context.Background(),
		"UPDATE images SET path = ? WHERE id = ?", path, imageID)
	return err
}

// ListArtworksMissingMetaSource returns artworks with no recorded
// sidecar path, for the refill job.
func (d *Database) ListArtworksMissingMetaSource(ctx context.Context) ([]Artwork, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_missing_meta", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, external_id, title, artist_id FROM artworks WHERE meta_source = ''
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var artworks []Artwork
	for rows.Next() {
		var aw Artwork
		if err = rows.Scan(&aw.ID, &aw.ExternalID, &aw.Title, &aw.ArtistID); err != nil {
			return nil, err
		}
		artworks = append(artworks, aw)
	}
	err = rows.Err()
	return artworks, err
}

// ListImages returns every image row, for the path migration job.
func (d *Database) ListImages(ctx context.Context) ([]Image, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_images", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, artwork_id, path, sort_order, width, height, size FROM images
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var images []Image
	for rows.Next() {
		var img Image
		if err = rows.Scan(&img.ID, &img.ArtworkID, &img.Path, &img.SortOrder,
			&img.Width, &img.Height, &img.Size); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	err = rows.Err()
	return images, err
}

// CalculateStats computes aggregate catalog counts.
func (d *Database) CalculateStats(ctx context.Context) (Stats, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("calculate_stats", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var stats Stats
	err = d.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM artists),
			(SELECT COUNT(*) FROM artworks),
			(SELECT COUNT(*) FROM images)
	`).Scan(&stats.Artists, &stats.Artworks, &stats.Images)
	return stats, err
}
