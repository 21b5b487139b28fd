package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Catalog is the concurrency-safe index of assets found in the storage
// directory. It maps each asset name to the set of qualities and the set of
// formats seen on storage. Re-indexing fully replaces prior state; Add
// updates state in place after a successful transcode.
type Catalog struct {
	mu        sync.RWMutex
	dir       string
	qualities map[string]map[Quality]struct{}
	formats   map[string]map[Format]struct{}
}

// New returns an empty catalog rooted at the given storage directory.
func New(dir string) *Catalog {
	return &Catalog{
		dir:       dir,
		qualities: make(map[string]map[Quality]struct{}),
		formats:   make(map[string]map[Format]struct{}),
	}
}

// Dir returns the storage directory the catalog indexes.
func (c *Catalog) Dir() string {
	return c.dir
}

// Path returns the storage path for an artifact.
func (c *Catalog) Path(a Artifact) string {
	return filepath.Join(c.dir, a.Filename())
}

// Index scans the immediate files of the storage directory and rebuilds the
// catalog from scratch. Filenames that do not parse as artifacts are skipped.
// Indexing the same directory twice yields the same catalog.
func (c *Catalog) Index() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("read video directory %s: %w", c.dir, err)
	}

	qualities := make(map[string]map[Quality]struct{})
	formats := make(map[string]map[Format]struct{})

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		a, ok := ParseFilename(e.Name())
		if !ok {
			continue
		}
		if qualities[a.Asset] == nil {
			qualities[a.Asset] = make(map[Quality]struct{})
			formats[a.Asset] = make(map[Format]struct{})
		}
		qualities[a.Asset][a.Quality] = struct{}{}
		formats[a.Asset][a.Format] = struct{}{}
	}

	c.mu.Lock()
	c.qualities = qualities
	c.formats = formats
	c.mu.Unlock()

	return nil
}

// Add records a freshly produced artifact without a full rescan, equivalent
// to re-parsing its filename.
func (c *Catalog) Add(a Artifact) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.qualities[a.Asset] == nil {
		c.qualities[a.Asset] = make(map[Quality]struct{})
		c.formats[a.Asset] = make(map[Format]struct{})
	}
	c.qualities[a.Asset][a.Quality] = struct{}{}
	c.formats[a.Asset][a.Format] = struct{}{}
}

// Assets returns the asset names currently in the catalog. Order is not
// guaranteed stable across calls.
func (c *Catalog) Assets() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.qualities))
	for name := range c.qualities {
		names = append(names, name)
	}
	return names
}

// Snapshot returns copies of the quality and format sets for one asset.
// ok is false if the asset is not in the catalog.
func (c *Catalog) Snapshot(asset string) (qualities []Quality, formats []Format, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	qset, exists := c.qualities[asset]
	if !exists {
		return nil, nil, false
	}

	// Render sets in enumeration order so output is deterministic.
	for _, q := range Qualities {
		if _, have := qset[q]; have {
			qualities = append(qualities, q)
		}
	}
	for _, f := range Formats {
		if _, have := c.formats[asset][f]; have {
			formats = append(formats, f)
		}
	}
	return qualities, formats, true
}

// MaxQuality returns the highest quality available for an asset, by
// enumeration order. ok is false if the asset is unknown or has no quality.
func (c *Catalog) MaxQuality(asset string) (Quality, bool) {
	qualities, _, ok := c.Snapshot(asset)
	if !ok || len(qualities) == 0 {
		return "", false
	}
	return qualities[len(qualities)-1], true
}

// Has reports whether the catalog lists the artifact's quality and format
// for its asset. This is advisory: callers that need certainty about a
// specific file must check storage.
func (c *Catalog) Has(a Artifact) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, q := c.qualities[a.Asset][a.Quality]; !q {
		return false
	}
	_, f := c.formats[a.Asset][a.Format]
	return f
}

// List renders the catalog listing sent in reply to the LIST command.
func (c *Catalog) List() string {
	var b strings.Builder
	b.WriteString("Available videos:\n")

	for _, asset := range c.Assets() {
		qualities, formats, ok := c.Snapshot(asset)
		if !ok {
			continue
		}
		b.WriteString(asset)
		b.WriteString(" - Qualities: ")
		b.WriteString(renderQualities(qualities))
		b.WriteString(", Formats: ")
		b.WriteString(renderFormats(formats))
		b.WriteString("\n")
	}

	return b.String()
}

// Info renders the detail reply for GET <asset>, or a not-found line.
func (c *Catalog) Info(asset string) string {
	qualities, formats, ok := c.Snapshot(asset)
	if !ok {
		return "Video not found: " + asset
	}
	return fmt.Sprintf("Video: %s\nAvailable qualities: %s\nAvailable formats: %s",
		asset, renderQualities(qualities), renderFormats(formats))
}

func renderQualities(qs []Quality) string {
	parts := make([]string, len(qs))
	for i, q := range qs {
		parts[i] = string(q)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func renderFormats(fs []Format) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = string(f)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
