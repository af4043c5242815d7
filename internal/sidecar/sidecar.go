package sidecar

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// Meta holds the artwork metadata read from a sidecar file.
type Meta struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// ParseFile reads and parses the sidecar file at path.
func ParseFile(path string) (Meta, error) {
	f, err := os.Open(path)
	if err != nil {
		return Meta{}, err
	}
	defer f.Close() //nolint:errcheck // read-only file

	return Parse(f)
}

// Parse reads sidecar metadata from r.
//
// The format is a sequence of "Key: value" lines. Recognized keys are
// Title and Description (case-insensitive). A "Tags:" line switches to
// list mode: every following non-empty line is one tag until the next
// "Key: value" line. Leading "#" and "- " tag markers are stripped.
// Unrecognized or malformed lines are skipped, never fatal.
func Parse(r io.Reader) (Meta, error) {
	var meta Meta
	inTags := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if key, value, ok := splitKeyValue(trimmed); ok {
			inTags = false
			switch strings.ToLower(key) {
			case "title":
				meta.Title = value
			case "description":
				meta.Description = value
			case "tags":
				inTags = true
				// inline form: "Tags: a, b, c"
				if value != "" {
					for _, tag := range strings.Split(value, ",") {
						if tag = cleanTag(tag); tag != "" {
							meta.Tags = append(meta.Tags, tag)
						}
					}
					inTags = false
				}
			}
			continue
		}

		if inTags {
			if tag := cleanTag(trimmed); tag != "" {
				meta.Tags = append(meta.Tags, tag)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return Meta{}, err
	}
	return meta, nil
}

// splitKeyValue splits "Key: value" lines. A key must be a single word
// so that tag lines containing colons ("fate/stay night: UBW") are not
// mistaken for keys.
func splitKeyValue(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:idx])
	if key == "" || strings.ContainsAny(key, " \t") {
		return "", "", false
	}
	return key, strings.TrimSpace(line[idx+1:]), true
}

func cleanTag(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimPrefix(tag, "- ")
	tag = strings.TrimPrefix(tag, "#")
	return strings.TrimSpace(tag)
}
