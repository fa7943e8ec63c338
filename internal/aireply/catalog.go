package aireply

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Media kinds a reply may carry.
const (
	MediaAudio = "audio"
	MediaImage = "image"
	MediaGIF   = "gif"
)

type MediaEntry struct {
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"`
	URL      string   `yaml:"url"`
	Filename string   `yaml:"filename"`
	Tags     []string `yaml:"tags"`
}

func (e MediaEntry) matches(hint string) bool {
	if strings.Contains(strings.ToLower(e.Name), hint) {
		return true
	}
	for _, tag := range e.Tags {
		if strings.Contains(strings.ToLower(tag), hint) {
			return true
		}
	}
	return false
}

// Catalog is the static per-archetype media library.
type Catalog struct {
	Archetypes map[string][]MediaEntry `yaml:"archetypes"`
}

// ParseCatalog decodes a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse media catalog: %w", err)
	}
	if c.Archetypes == nil {
		c.Archetypes = map[string][]MediaEntry{}
	}
	for archetype, entries := range c.Archetypes {
		for i, e := range entries {
			if e.URL == "" {
				return nil, fmt.Errorf("media catalog: %s[%d] has no url", archetype, i)
			}
			entries[i].Type = strings.ToLower(e.Type)
		}
	}
	return &c, nil
}

// LoadCatalog reads path, or the embedded catalog when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog(defaultCatalogYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(data)
}

// Select returns the first entry of mediaType for archetype, preferring
// entries whose name or tags contain hint. Archetypes without an entry of
// that type fall back to "default".
func (c *Catalog) Select(archetype, mediaType, hint string) (MediaEntry, bool) {
	if c == nil {
		return MediaEntry{}, false
	}
	hint = strings.ToLower(strings.TrimSpace(hint))
	mediaType = strings.ToLower(mediaType)

	for _, key := range []string{strings.ToLower(archetype), "default"} {
		var candidates []MediaEntry
		for _, e := range c.Archetypes[key] {
			if e.Type == mediaType {
				candidates = append(candidates, e)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		if hint != "" {
			for _, e := range candidates {
				if e.matches(hint) {
					return e, true
				}
			}
		}
		return candidates[0], true
	}
	return MediaEntry{}, false
}
