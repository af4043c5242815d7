package sidecar

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  Meta
	}{
		{
			name:  "title and description",
			input: "Title: Morning Sketch\nDescription: quick warmup\n",
			want:  Meta{Title: "Morning Sketch", Description: "quick warmup"},
		},
		{
			name:  "case insensitive keys",
			input: "title: lower\nDESCRIPTION: upper\n",
			want:  Meta{Title: "lower", Description: "upper"},
		},
		{
			name:  "tags list mode",
			input: "Title: X\nTags:\nlandscape\nwatercolor\n",
			want:  Meta{Title: "X", Tags: []string{"landscape", "watercolor"}},
		},
		{
			name:  "tags with markers",
			input: "Tags:\n- portrait\n#ink\n",
			want:  Meta{Tags: []string{"portrait", "ink"}},
		},
		{
			name:  "inline comma tags",
			input: "Tags: a, b , c\n",
			want:  Meta{Tags: []string{"a", "b", "c"}},
		},
		{
			name:  "tag containing a colon stays a tag",
			input: "Tags:\nfate/stay night: UBW\n",
			want:  Meta{Tags: []string{"fate/stay night: UBW"}},
		},
		{
			name:  "key line ends list mode",
			input: "Tags:\none\nTitle: after\ntwo\n",
			want:  Meta{Title: "after", Tags: []string{"one"}},
		},
		{
			name:  "blank lines skipped",
			input: "\n\nTitle: T\n\nTags:\n\nx\n",
			want:  Meta{Title: "T", Tags: []string{"x"}},
		},
		{
			name:  "unknown keys ignored",
			input: "Artist: someone\nTitle: kept\n",
			want:  Meta{Title: "kept"},
		},
		{
			name:  "malformed lines skipped",
			input: "no colon here\n: empty key\nTitle: ok\n",
			want:  Meta{Title: "ok"},
		},
		{
			name:  "windows line endings",
			input: "Title: crlf\r\nDescription: works\r\n",
			want:  Meta{Title: "crlf", Description: "works"},
		},
		{
			name:  "empty input",
			input: "",
			want:  Meta{},
		},
		{
			name:  "later value wins",
			input: "Title: first\nTitle: second\n",
			want:  Meta{Title: "second"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Parse(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "meta.txt")
	content := "Title: From Disk\nTags: alpha, beta\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write sidecar: %v", err)
	}

	got, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	want := Meta{Title: "From Disk", Tags: []string{"alpha", "beta"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseFile = %+v, want %+v", got, want)
	}
}

func TestParseFileMissing(t *testing.T) {
	t.Parallel()

	if _, err := ParseFile(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Error("ParseFile succeeded for missing file")
	}
}
