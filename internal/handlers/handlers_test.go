package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"gallery-sync/internal/database"
	"gallery-sync/internal/ingest"
	"gallery-sync/internal/jobs"
	"gallery-sync/internal/scanner"
	"gallery-sync/internal/startup"
)

type testEnv struct {
	handlers *Handlers
	router   *mux.Router
	db       *database.Database
	ledger   *jobs.Ledger
	library  string
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	library := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ledger := jobs.NewLedger(db)
	scan := scanner.New(db, library, scanner.Config{BatchSize: 10, RemoveMissing: true})
	ing := ingest.New(db, library)
	h := New(db, ledger, scan, ing, &startup.Config{ProgressPersistInterval: time.Second})

	r := mux.NewRouter()
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/scan", h.StartScan).Methods("POST")
	api.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET")
	api.HandleFunc("/jobs/{id}/cancel", h.CancelJob).Methods("POST")
	api.HandleFunc("/jobs/{id}/pause", h.PauseJob).Methods("POST")
	api.HandleFunc("/jobs/{id}/resume", h.ResumeJob).Methods("POST")
	api.HandleFunc("/artworks/{id}/media", h.ReplaceMedia).Methods("PUT")

	return &testEnv{handlers: h, router: r, db: db, ledger: ledger, library: library}
}

func (e *testEnv) do(t *testing.T, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func addLibraryArtwork(t *testing.T, library, artistDir, artworkDir string, files ...string) {
	t.Helper()

	dir := filepath.Join(library, artistDir, artworkDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("Failed to create %s: %v", dir, err)
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644); err != nil {
			t.Fatalf("Failed to write %s: %v", f, err)
		}
	}
}

func TestStartScanStreamsToCompletion(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	addLibraryArtwork(t, env.library, "Alice (u1)", "1", "1.jpg")

	rec := env.do(t, "POST", "/api/scan", "application/json", []byte(`{}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body:\n%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q, want text/event-stream", ct)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: connection") {
		t.Error("stream missing connection event")
	}
	if !strings.Contains(body, "event: complete") {
		t.Errorf("stream missing complete event:\n%s", body)
	}

	// The ledger row is terminal and carries the summary.
	list, err := env.ledger.List(context.Background(), jobs.TypeScan)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d jobs, want 1", len(list))
	}
	job := list[0]
	if job.Status != jobs.StatusCompleted {
		t.Errorf("job status = %s, want COMPLETED", job.Status)
	}
	summary, err := job.ScanResult()
	if err != nil {
		t.Fatalf("ScanResult failed: %v", err)
	}
	if summary == nil || summary.New != 1 {
		t.Errorf("scan summary = %+v, want 1 new", summary)
	}

	// The discovered artwork is in the catalog.
	if _, err := env.db.GetArtworkByExternalID(context.Background(), "1"); err != nil {
		t.Errorf("scanned artwork missing: %v", err)
	}
}

func TestStartScanConflict(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	if _, err := env.ledger.Create(context.Background(), jobs.TypeScan); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	rec := env.do(t, "POST", "/api/scan", "application/json", []byte(`{}`))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestStartScanValidation(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"unknown type", `{"type":"weekly"}`},
		{"list without paths", `{"type":"list"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, "POST", "/api/scan", "application/json", []byte(tt.body))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestGetJob(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	job, err := env.ledger.Create(context.Background(), jobs.TypeScan)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	rec := env.do(t, "GET", "/api/jobs/"+job.ID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got jobs.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.ID != job.ID || got.Status != jobs.StatusRunning {
		t.Errorf("job = %s/%s, want %s/RUNNING", got.ID, got.Status, job.ID)
	}

	rec = env.do(t, "GET", "/api/jobs/does-not-exist", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status for unknown job = %d, want 404", rec.Code)
	}
}

func TestListJobsFilter(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	if _, err := env.ledger.Create(context.Background(), jobs.TypeScan); err != nil {
		t.Fatal(err)
	}
	if _, err := env.ledger.Create(context.Background(), jobs.TypeMigration); err != nil {
		t.Fatal(err)
	}

	rec := env.do(t, "GET", "/api/jobs", "", nil)
	var all []jobs.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all jobs = %d, want 2", len(all))
	}

	rec = env.do(t, "GET", "/api/jobs?type=SCAN", "", nil)
	var scans []jobs.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &scans); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(scans) != 1 || scans[0].Type != jobs.TypeScan {
		t.Errorf("filtered jobs = %+v, want one SCAN", scans)
	}
}

func TestListJobsEmptyIsArray(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	rec := env.do(t, "GET", "/api/jobs", "", nil)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty list body = %q, want []", rec.Body.String())
	}
}

func TestCancelPauseResumeJob(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	ctx := context.Background()
	job, err := env.ledger.Create(ctx, jobs.TypeScan)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	rec := env.do(t, "POST", "/api/jobs/"+job.ID+"/pause", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("pause status = %d, want 200", rec.Code)
	}
	got, _ := env.ledger.Get(ctx, job.ID)
	if got.Status != jobs.StatusPaused {
		t.Errorf("status = %s, want PAUSED", got.Status)
	}

	rec = env.do(t, "POST", "/api/jobs/"+job.ID+"/resume", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("resume status = %d, want 200", rec.Code)
	}

	rec = env.do(t, "POST", "/api/jobs/"+job.ID+"/cancel", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("cancel status = %d, want 200", rec.Code)
	}
	got, _ = env.ledger.Get(ctx, job.ID)
	if got.Status != jobs.StatusCancelling {
		t.Errorf("status = %s, want CANCELLING", got.Status)
	}

	// Cancelling a terminal job is a conflict.
	if err := env.ledger.MarkCancelled(ctx, job.ID); err != nil {
		t.Fatalf("MarkCancelled failed: %v", err)
	}
	rec = env.do(t, "POST", "/api/jobs/"+job.ID+"/cancel", "", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("cancel of terminal job status = %d, want 409", rec.Code)
	}

	rec = env.do(t, "POST", "/api/jobs/no-such-job/cancel", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("cancel of unknown job status = %d, want 404", rec.Code)
	}
}

func pngUpload(t *testing.T, fieldFiles map[string][]byte) (string, []byte) {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, data := range fieldFiles {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("CreateFormFile failed: %v", err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return mw.FormDataContentType(), body.Bytes()
}

func encodePNG(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("Failed to encode PNG: %v", err)
	}
	return buf.Bytes()
}

func seedArtwork(t *testing.T, db *database.Database, externalID string) {
	t.Helper()

	b, err := db.BeginBatch()
	if err != nil {
		t.Fatalf("BeginBatch failed: %v", err)
	}
	artistID, err := db.UpsertArtist(b, &database.Artist{Name: "Alice", ExternalID: "u1"})
	if err == nil {
		_, err = db.UpsertArtwork(b, &database.Artwork{ExternalID: externalID, Title: "T", ArtistID: artistID})
	}
	if err := db.EndBatch(b, err); err != nil {
		t.Fatalf("Failed to seed artwork: %v", err)
	}
}

func TestReplaceMedia(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	seedArtwork(t, env.db, "9")

	contentType, body := pngUpload(t, map[string][]byte{"9.png": encodePNG(t)})
	rec := env.do(t, "PUT", "/api/artworks/9/media?dir=Alice+(u1)/9", contentType, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool `json:"success"`
		Count   int  `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !resp.Success || resp.Count != 1 {
		t.Errorf("response = %+v, want success with count 1", resp)
	}

	if _, err := os.Stat(filepath.Join(env.library, "Alice (u1)", "9", "9.png")); err != nil {
		t.Errorf("uploaded file not on disk: %v", err)
	}

	aw, err := env.db.GetArtworkByExternalID(context.Background(), "9")
	if err != nil {
		t.Fatalf("GetArtworkByExternalID failed: %v", err)
	}
	if aw.ImageCount != 1 {
		t.Errorf("image count = %d, want 1", aw.ImageCount)
	}
}

func TestReplaceMediaUnknownArtwork(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	contentType, body := pngUpload(t, map[string][]byte{"9.png": encodePNG(t)})
	rec := env.do(t, "PUT", "/api/artworks/9/media", contentType, body)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestReplaceMediaRequiresMultipart(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	seedArtwork(t, env.db, "9")

	rec := env.do(t, "PUT", "/api/artworks/9/media", "application/json", []byte(`{}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestReplaceMediaEmptyUpload(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	seedArtwork(t, env.db, "9")

	contentType, body := pngUpload(t, nil)
	rec := env.do(t, "PUT", "/api/artworks/9/media?dir=Alice+(u1)/9", contentType, body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400, body: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthAndVersion(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)

	rec := env.do(t, "GET", "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}
	var health struct {
		Status  string `json:"status"`
		Catalog struct {
			Artworks int `json:"artworks"`
		} `json:"catalog"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("health status = %q, want ok", health.Status)
	}

	rec = env.do(t, "GET", "/readyz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("readyz status = %d, want 200", rec.Code)
	}

	rec = env.do(t, "GET", "/version", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("version status = %d, want 200", rec.Code)
	}
	var info startup.BuildInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if info.Version == "" || info.GoVersion == "" {
		t.Errorf("build info incomplete: %+v", info)
	}
}

func TestStartScanCancelledMidway(t *testing.T) {
	t.Parallel()

	env := setupEnv(t)
	addLibraryArtwork(t, env.library, "Alice (u1)", "1", "1.jpg")

	// Request cancellation as soon as the job appears, from a watcher
	// goroutine, the way an operator would via the cancel endpoint.
	go func() {
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			list, err := env.ledger.List(context.Background(), jobs.TypeScan)
			if err == nil && len(list) > 0 {
				_ = env.ledger.Cancel(context.Background(), list[0].ID)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	rec := env.do(t, "POST", "/api/scan", "application/json", []byte(`{}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	// Whichever side wins the race, the job must end terminal.
	list, err := env.ledger.List(context.Background(), jobs.TypeScan)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d jobs, want 1", len(list))
	}
	if !list[0].Status.Terminal() {
		t.Errorf("job status = %s, want a terminal state", list[0].Status)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: complete") && !strings.Contains(body, "event: cancelled") {
		t.Errorf("stream ended without a terminal event:\n%s", body)
	}
}
