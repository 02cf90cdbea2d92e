package archives

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// ManifestPath is the manifest location relative to an archive root.
var ManifestPath = filepath.Join("META-INF", "MANIFEST.MF")

// DefaultURLBase is used when a manifest names no url-base.
const DefaultURLBase = "https://mathhub.info"

// Manifest is the parsed META-INF/MANIFEST.MF. List-valued keys are
// comma-separated.
type Manifest struct {
	ID           string `yaml:"id"`
	URLBase      string `yaml:"url-base"`
	Format       string `yaml:"format"`
	Title        string `yaml:"title"`
	Ignore       string `yaml:"ignore"`
	Dependencies string `yaml:"dependencies"`
}

// IgnorePatterns returns the doublestar patterns of the ignore key.
func (m Manifest) IgnorePatterns() []string { return splitList(m.Ignore) }

// DependencyIDs returns the archive ids of the dependencies key.
func (m Manifest) DependencyIDs() []string { return splitList(m.Dependencies) }

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ReadManifest reads and validates the manifest of the archive at root.
func ReadManifest(root string) (Manifest, error) {
	path := filepath.Join(root, ManifestPath)
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	if m.URLBase == "" {
		m.URLBase = DefaultURLBase
	}
	for _, p := range m.IgnorePatterns() {
		if !doublestar.ValidatePattern(p) {
			return Manifest{}, fmt.Errorf("manifest %s: invalid ignore pattern %q", path, p)
		}
	}
	return m, nil
}

// ignored reports whether a source-relative path matches one of patterns.
func ignored(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
