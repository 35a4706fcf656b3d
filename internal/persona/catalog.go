package persona

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type catalogFile struct {
	Personas []catalogEntry `yaml:"personas"`
}

type catalogEntry struct {
	Alias    string            `yaml:"alias"`
	Category string            `yaml:"category"`
	Bio      map[string]string `yaml:"bio"`
	Empathy  map[string]string `yaml:"empathy"`
}

// DefaultCatalog returns the reference personas shipped with the binary.
func DefaultCatalog() ([]Persona, error) {
	return ParseCatalog(bytes.NewReader(defaultCatalog))
}

// ParseCatalog decodes a YAML persona catalog.
func ParseCatalog(r io.Reader) ([]Persona, error) {
	var file catalogFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode persona catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Personas))
	out := make([]Persona, 0, len(file.Personas))
	for i, entry := range file.Personas {
		alias := strings.TrimSpace(entry.Alias)
		if alias == "" {
			return nil, fmt.Errorf("persona catalog entry %d: alias is required", i)
		}
		category, ok := ParseCategory(entry.Category)
		if !ok {
			return nil, fmt.Errorf("persona catalog entry %q: unknown category %q", alias, entry.Category)
		}
		if _, dup := seen[alias]; dup {
			return nil, fmt.Errorf("persona catalog entry %q: duplicate alias", alias)
		}
		seen[alias] = struct{}{}
		out = append(out, Persona{
			Alias:    alias,
			Category: category,
			Bio:      Attributes(entry.Bio).Clone(),
			Empathy:  Attributes(entry.Empathy).Clone(),
		})
	}
	return out, nil
}
