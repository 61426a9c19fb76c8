// Package eddn uploads market, outfitting and shipyard snapshots of the
// docked starport to an EDDN-style relay.
package eddn

import (
	"errors"
	"sort"
	"strings"
	"time"

	"ocellus/internal/logging"
	"ocellus/internal/profile"
)

const (
	SchemaCommodity  = "https://eddn.edcd.io/schemas/commodity/3"
	SchemaOutfitting = "https://eddn.edcd.io/schemas/outfitting/2"
	SchemaShipyard   = "https://eddn.edcd.io/schemas/shipyard/2"
)

// ErrNotDocked is returned when a snapshot is requested for facts that do
// not place the commander at a starport.
var ErrNotDocked = errors.New("eddn: not docked at a known starport")

// Header identifies the uploader.
type Header struct {
	UploaderID      string `json:"uploaderID"`
	SoftwareName    string `json:"softwareName"`
	SoftwareVersion string `json:"softwareVersion"`
}

// Envelope is one relay message.
type Envelope struct {
	SchemaRef string      `json:"$schemaRef"`
	Header    Header      `json:"header"`
	Message   interface{} `json:"message"`
}

// Commodity is one market line.
type Commodity struct {
	Name          string `json:"name"`
	MeanPrice     int64  `json:"meanPrice"`
	BuyPrice      int64  `json:"buyPrice"`
	Stock         int64  `json:"stock"`
	StockBracket  int64  `json:"stockBracket"`
	SellPrice     int64  `json:"sellPrice"`
	Demand        int64  `json:"demand"`
	DemandBracket int64  `json:"demandBracket"`
}

type commodityMessage struct {
	SystemName  string      `json:"systemName"`
	StationName string      `json:"stationName"`
	Timestamp   string      `json:"timestamp"`
	Commodities []Commodity `json:"commodities"`
}

type outfittingMessage struct {
	SystemName  string   `json:"systemName"`
	StationName string   `json:"stationName"`
	Timestamp   string   `json:"timestamp"`
	Modules     []string `json:"modules"`
}

type shipyardMessage struct {
	SystemName  string   `json:"systemName"`
	StationName string   `json:"stationName"`
	Timestamp   string   `json:"timestamp"`
	Ships       []string `json:"ships"`
}

// Snapshot is what gets uploaded for one docked pass.
type Snapshot struct {
	Facts *profile.Facts
	Raw   profile.Value
	At    time.Time
}

// Envelopes builds the messages for every service the starport offers.
// Services without usable entries are skipped.
func (s Snapshot) Envelopes(h Header, test bool) ([]Envelope, error) {
	f := s.Facts
	if f == nil || !f.Docked || f.CurrentSystem == nil || f.CurrentStarport == nil {
		return nil, ErrNotDocked
	}
	system, station := *f.CurrentSystem, *f.CurrentStarport
	ts := s.At.UTC().Format(time.RFC3339)
	port, _ := s.Raw.Get("lastStarport")

	var out []Envelope
	add := func(schema string, msg interface{}) {
		if test {
			schema += "/test"
		}
		out = append(out, Envelope{SchemaRef: schema, Header: h, Message: msg})
	}

	if f.Services.Commodities {
		if lines := commodities(port); len(lines) > 0 {
			add(SchemaCommodity, commodityMessage{system, station, ts, lines})
		}
	}
	if f.Services.Outfitting {
		if mods := outfitting(port); len(mods) > 0 {
			add(SchemaOutfitting, outfittingMessage{system, station, ts, mods})
		}
	}
	if f.Services.Shipyard {
		if ships := shipyard(port); len(ships) > 0 {
			add(SchemaShipyard, shipyardMessage{system, station, ts, ships})
		}
	}
	return out, nil
}

func commodities(port profile.Value) []Commodity {
	node, ok := port.Get("commodities")
	if !ok {
		return nil
	}
	items, err := node.Items()
	if err != nil {
		logging.EDDNDebug("commodities: %v", err)
		return nil
	}
	out := make([]Commodity, 0, len(items))
	for _, it := range items {
		c, err := commodity(it)
		if err != nil {
			logging.EDDNDebug("skipping commodity at %s: %v", it.Path(), err)
			continue
		}
		out = append(out, c)
	}
	return out
}

func commodity(v profile.Value) (Commodity, error) {
	var c Commodity
	var err error
	if c.Name, err = v.StrAt("name"); err != nil {
		return c, err
	}
	ints := []struct {
		key string
		dst *int64
	}{
		{"meanPrice", &c.MeanPrice},
		{"buyPrice", &c.BuyPrice},
		{"stock", &c.Stock},
		{"stockBracket", &c.StockBracket},
		{"sellPrice", &c.SellPrice},
		{"demand", &c.Demand},
		{"demandBracket", &c.DemandBracket},
	}
	for _, field := range ints {
		// brackets come through as "" when the market has none
		if s, err := v.StrAt(field.key); err == nil && s == "" {
			continue
		}
		if *field.dst, err = v.IntAt(field.key); err != nil {
			return c, err
		}
	}
	return c, nil
}

// outfittingName reports whether a module is one the relay accepts.
func outfittingName(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasPrefix(lower, "hpt_") || strings.HasPrefix(lower, "int_") || strings.Contains(lower, "_armour_")
}

func outfitting(port profile.Value) []string {
	node, ok := port.Get("modules")
	if !ok {
		return nil
	}
	var out []string
	for _, key := range node.Keys() {
		mod, _ := node.Get(key)
		name, err := mod.StrAt("name")
		if err != nil || !outfittingName(name) {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func shipyard(port profile.Value) []string {
	ships, ok := port.Get("ships")
	if !ok {
		return nil
	}
	seen := map[string]bool{}
	collect := func(v profile.Value) {
		if name, err := v.StrAt("name"); err == nil && name != "" {
			seen[name] = true
		}
	}
	if list, ok := ships.Get("shipyard_list"); ok {
		for _, key := range list.Keys() {
			s, _ := list.Get(key)
			collect(s)
		}
	}
	if unavailable, ok := ships.Get("unavailable_list"); ok {
		items, _ := unavailable.Items()
		for _, s := range items {
			collect(s)
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
