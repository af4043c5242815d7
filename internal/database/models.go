package database

import "time"

// Artist is a catalog row mirroring one artist directory on disk.
type Artist struct {
	ID         int64  `json:"id"`
	ExternalID string `json:"externalId"`
	Name       string `json:"name"`
	Username   string `json:"username,omitempty"`
}

// Artwork is a catalog row mirroring one artwork directory.
// ImageCount always equals the number of Image rows referencing the
// artwork; every mutator maintains it in the same transaction as the
// image writes.
type Artwork struct {
	ID                 int64     `json:"id"`
	ExternalID         string    `json:"externalId"`
	Title              string    `json:"title"`
	Description        string    `json:"description,omitempty"`
	ArtistID           int64     `json:"artistId"`
	ImageCount         int       `json:"imageCount"`
	MetaSource         string    `json:"metaSource,omitempty"` // catalog-relative sidecar path
	DirectoryCreatedAt time.Time `json:"directoryCreatedAt"`
	Tags               []string  `json:"tags,omitempty"`
}

// Image is a catalog row for one media file of an artwork. SortOrder is
// derived from the filename's page index; values need not be contiguous.
type Image struct {
	ID        int64  `json:"id"`
	ArtworkID int64  `json:"artworkId"`
	Path      string `json:"path"` // relative to the library root
	SortOrder int    `json:"sortOrder"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Size      int64  `json:"size"`
}

// ArtworkSummary is the compact per-artwork view the scanner diffs
// against: stored metadata plus the ordered image paths.
type ArtworkSummary struct {
	ID          int64
	ExternalID  string
	Title       string
	Description string
	MetaSource  string
	ImagePaths  []string
	Tags        []string
}

// Stats are aggregate catalog counts for health reporting.
type Stats struct {
	Artists  int `json:"artists"`
	Artworks int `json:"artworks"`
	Images   int `json:"images"`
}
