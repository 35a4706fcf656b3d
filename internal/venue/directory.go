// Package venue holds the catalog of bookable venues: the per-person rate
// table and the published details captured into reservation snapshots.
package venue

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/matchbook/internal/reservation"
)

//go:embed venues.yaml
var defaultCatalog []byte

// ErrNotFound is returned for venues missing from the directory.
var ErrNotFound = errors.New("venue: not found")

// Venue is a bookable location.
type Venue struct {
	Name    string
	Rate    reservation.Money
	Hours   string
	Address string
	Phone   string
}

type catalogFile struct {
	Venues []struct {
		Name    string `yaml:"name"`
		Rate    string `yaml:"rate"`
		Hours   string `yaml:"hours"`
		Address string `yaml:"address"`
		Phone   string `yaml:"phone"`
	} `yaml:"venues"`
}

// Directory is an immutable, case-insensitive venue lookup. It is safe for
// concurrent use.
type Directory struct {
	source string
	byKey  map[string]Venue
}

// Default returns the directory embedded in the binary.
func Default() (*Directory, error) {
	return Parse(bytes.NewReader(defaultCatalog), "embedded")
}

// Load reads a directory from a YAML file. An empty path yields Default.
func Load(path string) (*Directory, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open venue catalog: %w", err)
	}
	defer f.Close()
	return Parse(f, path)
}

// Parse decodes a YAML venue catalog. source is recorded in snapshots.
func Parse(r io.Reader, source string) (*Directory, error) {
	var file catalogFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode venue catalog: %w", err)
	}

	d := &Directory{source: source, byKey: make(map[string]Venue, len(file.Venues))}
	for _, entry := range file.Venues {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			return nil, errors.New("venue catalog: name is required")
		}
		rate, err := reservation.ParseMoney(entry.Rate)
		if err != nil {
			return nil, fmt.Errorf("venue catalog %q: %w", name, err)
		}
		key := normalize(name)
		if _, dup := d.byKey[key]; dup {
			return nil, fmt.Errorf("venue catalog %q: duplicate venue", name)
		}
		d.byKey[key] = Venue{
			Name:    name,
			Rate:    rate,
			Hours:   strings.TrimSpace(entry.Hours),
			Address: strings.TrimSpace(entry.Address),
			Phone:   strings.TrimSpace(entry.Phone),
		}
	}
	return d, nil
}

// Lookup returns the venue with the given name.
func (d *Directory) Lookup(name string) (Venue, bool) {
	if d == nil {
		return Venue{}, false
	}
	v, ok := d.byKey[normalize(name)]
	return v, ok
}

// Rate implements reservation.RateTable.
func (d *Directory) Rate(name string) (reservation.Money, bool) {
	v, ok := d.Lookup(name)
	return v.Rate, ok
}

// Snapshot captures the published details of a venue at the given time.
func (d *Directory) Snapshot(name string, at time.Time) (reservation.Snapshot, error) {
	v, ok := d.Lookup(name)
	if !ok {
		return reservation.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return reservation.Snapshot{
		Hours:      v.Hours,
		Address:    v.Address,
		Phone:      v.Phone,
		Source:     d.source,
		CapturedAt: at,
	}.Seal(), nil
}

// List returns every venue ordered by name.
func (d *Directory) List() []Venue {
	if d == nil {
		return nil
	}
	out := make([]Venue, 0, len(d.byKey))
	for _, v := range d.byKey {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
