// Package systems holds the read-only star system index used to enrich
// profile facts with coordinates and station ids.
package systems

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	"ocellus/internal/logging"
)

// Coords is a position in light years.
type Coords struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DistanceTo returns the straight-line distance to o.
func (c Coords) DistanceTo(o Coords) float64 {
	dx, dy, dz := c.X-o.X, c.Y-o.Y, c.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// System is one index entry.
type System struct {
	Name     string
	ID       string
	Coords   Coords
	Stations map[string]string
}

// flexID accepts ids written as numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type indexEntry struct {
	ID       flexID            `json:"id"`
	X        float64           `json:"x"`
	Y        float64           `json:"y"`
	Z        float64           `json:"z"`
	Stations map[string]flexID `json:"stations"`
}

// systemsKey is matched exactly; encoding/json would fold case on a struct tag.
const systemsKey = "systems"

// Parse decodes an index document. The top-level key is always "systems".
func Parse(data []byte) (map[string]System, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode system index: %w", err)
	}
	raw, ok := doc[systemsKey]
	if !ok {
		return nil, fmt.Errorf("system index has no %q key", systemsKey)
	}
	var systems map[string]indexEntry
	if err := json.Unmarshal(raw, &systems); err != nil {
		return nil, fmt.Errorf("decode system index: %w", err)
	}
	if systems == nil {
		return nil, fmt.Errorf("system index %q is empty", systemsKey)
	}

	out := make(map[string]System, len(systems))
	for name, entry := range systems {
		sys := System{
			Name:     name,
			ID:       string(entry.ID),
			Coords:   Coords{X: entry.X, Y: entry.Y, Z: entry.Z},
			Stations: make(map[string]string, len(entry.Stations)),
		}
		for station, id := range entry.Stations {
			sys.Stations[station] = string(id)
		}
		out[strings.ToLower(name)] = sys
	}
	return out, nil
}

// Index is a concurrency-safe view over the index file. Reload swaps the
// whole table at once.
type Index struct {
	path string

	mu      sync.RWMutex
	systems map[string]System
	loaded  bool
}

// NewIndex creates an empty index bound to path. Call Load to read it.
func NewIndex(path string) *Index {
	return &Index{path: path, systems: make(map[string]System)}
}

// NewIndexFrom builds an in-memory index, mostly for tests.
func NewIndexFrom(entries ...System) *Index {
	ix := NewIndex("")
	for _, s := range entries {
		ix.systems[strings.ToLower(s.Name)] = s
	}
	ix.loaded = true
	return ix
}

// Path returns the file the index reads.
func (ix *Index) Path() string { return ix.path }

// Load reads the file. On failure the previous table stays in place.
func (ix *Index) Load() error {
	data, err := os.ReadFile(ix.path)
	if err != nil {
		return fmt.Errorf("read system index %s: %w", ix.path, err)
	}
	table, err := Parse(data)
	if err != nil {
		return err
	}

	ix.mu.Lock()
	ix.systems = table
	ix.loaded = true
	ix.mu.Unlock()

	logging.Systems("loaded %d systems from %s", len(table), ix.path)
	return nil
}

// Lookup finds a system by name, ignoring case.
func (ix *Index) Lookup(name string) (System, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	s, ok := ix.systems[strings.ToLower(name)]
	return s, ok
}

// Len returns the number of indexed systems.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.systems)
}

// Loaded reports whether a table has been read successfully.
func (ix *Index) Loaded() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.loaded
}
