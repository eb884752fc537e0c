package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nao1215/boxhunt/internal/model"
)

// ManifestID is the default adapter id of a manifest source.
const ManifestID = "manifest"

// ManifestEntry is one curated image of a manifest file.
type ManifestEntry struct {
	// Keyword selects the searches that return the entry. Empty matches
	// every keyword.
	Keyword string `yaml:"keyword"`
	URL     string `yaml:"url"`
	Title   string `yaml:"title,omitempty"`
	Width   int    `yaml:"width,omitempty"`
	Height  int    `yaml:"height,omitempty"`
}

// manifestFile is the on-disk layout:
//
//	id: curated
//	images:
//	  - keyword: cardboard box
//	    url: https://example.com/box.jpg
type manifestFile struct {
	ID     string          `yaml:"id,omitempty"`
	Images []ManifestEntry `yaml:"images"`
}

// Manifest is an offline source that answers searches from a YAML list of
// image URLs. It serves recorded fixtures and hand-curated collections.
type Manifest struct {
	id      string
	entries []ManifestEntry
	now     func() time.Time
}

// LoadManifest reads a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, unavailable(ManifestID, "open %s: %v", path, err)
	}
	defer f.Close()
	return ParseManifest(f)
}

// ParseManifest decodes a manifest.
func ParseManifest(r io.Reader) (*Manifest, error) {
	var file manifestFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	id := strings.TrimSpace(file.ID)
	if id == "" {
		id = ManifestID
	}
	for i, e := range file.Images {
		if strings.TrimSpace(e.URL) == "" {
			return nil, fmt.Errorf("parse manifest: image %d has no url", i+1)
		}
	}
	return &Manifest{id: id, entries: file.Images, now: time.Now}, nil
}

// ID implements Adapter.
func (m *Manifest) ID() string {
	return m.id
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	return len(m.entries)
}

// Search implements Adapter. Keywords match case-insensitively after
// normalisation.
func (m *Manifest) Search(ctx context.Context, keyword string, limit int) ([]model.ImageCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := m.now()
	var out []model.ImageCandidate
	seen := make(map[string]bool)
	for _, e := range m.entries {
		if len(out) >= limit {
			break
		}
		if e.Keyword != "" && !model.SameKeyword(e.Keyword, keyword) {
			continue
		}
		u := strings.TrimSpace(e.URL)
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, model.ImageCandidate{
			SourceID:     m.id,
			URL:          u,
			Title:        e.Title,
			Width:        e.Width,
			Height:       e.Height,
			DiscoveredAt: now,
		})
	}
	return out, nil
}
