package collector

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParsePageIndex(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		filename   string
		externalID string
		wantPage   int
		wantOK     bool
	}{
		{
			name:       "exact match is page zero",
			filename:   "12345.jpg",
			externalID: "12345",
			wantPage:   0,
			wantOK:     true,
		},
		{
			name:       "explicit page suffix",
			filename:   "12345_p3.png",
			externalID: "12345",
			wantPage:   3,
			wantOK:     true,
		},
		{
			name:       "page zero suffix",
			filename:   "12345_p0.jpg",
			externalID: "12345",
			wantPage:   0,
			wantOK:     true,
		},
		{
			name:       "large page index",
			filename:   "12345_p142.webp",
			externalID: "12345",
			wantPage:   142,
			wantOK:     true,
		},
		{
			name:       "uppercase extension",
			filename:   "12345.JPG",
			externalID: "12345",
			wantPage:   0,
			wantOK:     true,
		},
		{
			name:       "zip archive qualifies",
			filename:   "12345.zip",
			externalID: "12345",
			wantPage:   0,
			wantOK:     true,
		},
		{
			name:       "wrong id rejected",
			filename:   "99999.jpg",
			externalID: "12345",
			wantOK:     false,
		},
		{
			name:       "id prefix without page marker rejected",
			filename:   "12345_cover.jpg",
			externalID: "12345",
			wantOK:     false,
		},
		{
			name:       "empty page number rejected",
			filename:   "12345_p.jpg",
			externalID: "12345",
			wantOK:     false,
		},
		{
			name:       "non-numeric page rejected",
			filename:   "12345_px.jpg",
			externalID: "12345",
			wantOK:     false,
		},
		{
			name:       "unsupported extension rejected",
			filename:   "12345.txt",
			externalID: "12345",
			wantOK:     false,
		},
		{
			name:       "no extension rejected",
			filename:   "12345",
			externalID: "12345",
			wantOK:     false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			page, ok := ParsePageIndex(tt.filename, tt.externalID)
			if ok != tt.wantOK {
				t.Fatalf("ParsePageIndex(%q, %q) ok = %v, want %v", tt.filename, tt.externalID, ok, tt.wantOK)
			}
			if ok && page != tt.wantPage {
				t.Errorf("ParsePageIndex(%q, %q) page = %d, want %d", tt.filename, tt.externalID, page, tt.wantPage)
			}
		})
	}
}

func writeTestFile(t *testing.T, dir, name string, size int) {
	t.Helper()
	data := make([]byte, size)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
}

func TestCollectOrdersByPageIndex(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTestFile(t, dir, "100_p2.jpg", 30)
	writeTestFile(t, dir, "100_p0.jpg", 10)
	writeTestFile(t, dir, "other.txt", 5)
	writeTestFile(t, dir, "notes.png", 5)

	result := Collect(dir, "100")
	if !result.OK {
		t.Fatalf("Collect failed: %v", result.Err)
	}

	wantNames := []string{"100_p0.jpg", "100_p2.jpg"}
	if len(result.Files) != len(wantNames) {
		t.Fatalf("Collect returned %d files, want %d", len(result.Files), len(wantNames))
	}
	for i, want := range wantNames {
		if result.Files[i].Name != want {
			t.Errorf("file %d = %q, want %q", i, result.Files[i].Name, want)
		}
	}

	// Gaps in the page sequence are preserved, not renumbered.
	if result.Files[1].PageIndex != 2 {
		t.Errorf("second file page = %d, want 2", result.Files[1].PageIndex)
	}
}

func TestCollectExactFormPrecedesSuffix(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTestFile(t, dir, "55.jpg", 10)
	writeTestFile(t, dir, "55_p1.jpg", 20)

	result := Collect(dir, "55")
	if !result.OK {
		t.Fatalf("Collect failed: %v", result.Err)
	}
	if len(result.Files) != 2 {
		t.Fatalf("Collect returned %d files, want 2", len(result.Files))
	}
	if result.Files[0].Name != "55.jpg" || result.Files[0].PageIndex != 0 {
		t.Errorf("first file = %q (page %d), want 55.jpg (page 0)", result.Files[0].Name, result.Files[0].PageIndex)
	}
}

func TestCollectSkipsSubdirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTestFile(t, dir, "7.gif", 10)
	if err := os.Mkdir(filepath.Join(dir, "7_p1.jpg"), 0o755); err != nil {
		t.Fatalf("Failed to create subdirectory: %v", err)
	}

	result := Collect(dir, "7")
	if !result.OK {
		t.Fatalf("Collect failed: %v", result.Err)
	}
	if len(result.Files) != 1 || result.Files[0].Name != "7.gif" {
		t.Errorf("Collect = %+v, want only 7.gif", result.Files)
	}
}

func TestCollectEmptyDirectory(t *testing.T) {
	t.Parallel()

	result := Collect(t.TempDir(), "1")
	if !result.OK {
		t.Fatalf("Collect failed: %v", result.Err)
	}
	if len(result.Files) != 0 {
		t.Errorf("Collect returned %d files, want 0", len(result.Files))
	}
}

func TestCollectUnreadableDirectoryIsSoftFailure(t *testing.T) {
	t.Parallel()

	result := Collect(filepath.Join(t.TempDir(), "does-not-exist"), "1")
	if result.OK {
		t.Fatal("Collect reported OK for missing directory")
	}
	if result.Err == nil {
		t.Error("Collect did not surface the underlying error")
	}
}

func TestCollectRecordsFileSizes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTestFile(t, dir, "9.jpg", 1234)

	result := Collect(dir, "9")
	if !result.OK {
		t.Fatalf("Collect failed: %v", result.Err)
	}
	if len(result.Files) != 1 {
		t.Fatalf("Collect returned %d files, want 1", len(result.Files))
	}
	if result.Files[0].Size != 1234 {
		t.Errorf("size = %d, want 1234", result.Files[0].Size)
	}
}
