package handlers

import (
	"database/sql"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gorilla/mux"

	"gallery-sync/internal/ingest"
)

// multipartSource adapts a multipart reader into an ingest.FileSource,
// skipping non-file parts. Parts are yielded in stream order and each
// is only valid until the next call.
type multipartSource struct {
	mr *multipart.Reader
}

func (s *multipartSource) Next() (*ingest.IncomingFile, error) {
	for {
		part, err := s.mr.NextPart()
		if err != nil {
			return nil, err // io.EOF at end of stream
		}
		if part.FileName() == "" {
			continue
		}
		return &ingest.IncomingFile{Name: part.FileName(), Reader: part}, nil
	}
}

// ReplaceMedia replaces an artwork's media set with the files of a
// multipart upload. The artwork is addressed by external id; an
// optional "dir" query parameter hints the target directory for
// artworks that have no stored images yet.
//
// Concurrent replacements of the same artwork are a caller error; the
// handler does not serialize them.
func (h *Handlers) ReplaceMedia(w http.ResponseWriter, r *http.Request) {
	artwork, err := h.db.GetArtworkByExternalID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSONError(w, "artwork not found", http.StatusNotFound)
			return
		}
		writeJSONError(w, "failed to load artwork", http.StatusInternalServerError)
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		writeJSONError(w, "request must be multipart/form-data", http.StatusBadRequest)
		return
	}

	count, err := h.ingestor.Replace(r.Context(), artwork, r.URL.Query().Get("dir"), &multipartSource{mr: mr})
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ingest.ErrValidation):
			status = http.StatusBadRequest
		case errors.Is(err, io.ErrUnexpectedEOF):
			status = http.StatusBadRequest
		}
		writeJSONError(w, err.Error(), status)
		return
	}

	writeJSON(w, map[string]interface{}{"success": true, "count": count})
}
