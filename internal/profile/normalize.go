// Package profile turns the companion service's loosely typed profile
// document into flat, typed facts.
package profile

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"ocellus/internal/logging"
	"ocellus/internal/systems"
)

// ErrLocationUnknown marks a docked commander whose system or starport block
// is missing. The facts returned alongside it are otherwise valid.
var ErrLocationUnknown = errors.New("docked but location unknown")

// NormError is a structural problem in the profile document.
type NormError struct {
	Step int
	Path string
	Err  error
}

func (e *NormError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("normalize step %d at %s: %v", e.Step, e.Path, e.Err)
	}
	return fmt.Sprintf("normalize step %d: %v", e.Step, e.Err)
}

func (e *NormError) Unwrap() error { return e.Err }

func normErr(step int, err error) *NormError {
	ne := &NormError{Step: step, Err: err}
	var pe *PathError
	if errors.As(err, &pe) {
		ne.Path = pe.Path
	}
	return ne
}

// SystemLookup resolves a star system by name. Implemented by systems.Index.
type SystemLookup interface {
	Lookup(name string) (systems.System, bool)
}

// Normalizer converts raw profiles into Facts. It holds no per-pass state.
type Normalizer struct {
	lookup SystemLookup
}

// NewNormalizer creates a normalizer. lookup may be nil, in which case no
// coordinate or id enrichment happens.
func NewNormalizer(lookup SystemLookup) *Normalizer {
	return &Normalizer{lookup: lookup}
}

// Normalize runs a full pass over raw.
//
// A structural failure in the commander, fleet or cargo blocks returns nil
// facts and a *NormError. A docked profile without its location returns facts
// with no station fields and ErrLocationUnknown. A loadout failure returns
// facts with a zero loadout and a *NormError. The last two may be joined.
func (n *Normalizer) Normalize(raw Value) (*Facts, error) {
	timer := logging.StartTimer(logging.CategoryNormalize, "Normalize")
	defer timer.Stop()

	f := NewFacts()

	currentShipID, err := n.commander(raw, f)
	if err != nil {
		return nil, normErr(2, err)
	}
	ships, err := canonicalShips(raw)
	if err != nil {
		return nil, normErr(3, err)
	}
	if err := n.fleet(ships, currentShipID, f); err != nil {
		return nil, normErr(3, err)
	}
	for _, s := range f.Ships {
		f.addShipSlot(s.Type, s.System)
	}
	resolveAmbiguous(f)
	if f.CargoCapacity, err = raw.IntAt("ship", "cargo", "capacity"); err != nil {
		return nil, normErr(6, err)
	}
	if f.CargoQuantity, err = raw.IntAt("ship", "cargo", "qty"); err != nil {
		return nil, normErr(6, err)
	}

	var errs []error
	if !location(raw, f) {
		logging.NormalizeWarn("docked=true but lastSystem/lastStarport missing")
		errs = append(errs, ErrLocationUnknown)
	}
	n.enrich(f)

	loadout, err := DecodeLoadout(raw)
	if err != nil {
		logging.NormalizeWarn("loadout decode failed: %v", err)
		errs = append(errs, normErr(8, err))
	} else {
		f.Loadout = loadout
	}

	logging.NormalizeDebug("cmdr=%s ships=%d docked=%v system=%s", f.Commander, f.NumberOfShips, f.Docked, deref(f.CurrentSystem))
	return f, errors.Join(errs...)
}

func (n *Normalizer) commander(raw Value, f *Facts) (string, error) {
	cmdr, err := raw.Field("commander")
	if err != nil {
		return "", err
	}
	if f.Commander, err = cmdr.StrAt("name"); err != nil {
		return "", err
	}
	if f.Credits, err = cmdr.IntAt("credits"); err != nil {
		return "", err
	}
	if f.Debt, err = cmdr.IntAt("debt"); err != nil {
		return "", err
	}
	if f.Docked, err = cmdr.BoolAt("docked"); err != nil {
		return "", err
	}
	idNode, err := cmdr.Field("currentShipId")
	if err != nil {
		return "", err
	}
	currentShipID, err := idNode.Scalar()
	if err != nil {
		return "", err
	}
	f.CurrentShipID = currentShipID

	for _, track := range RankTracks {
		idx, err := cmdr.IntAt("rank", string(track))
		if err != nil {
			return "", err
		}
		label, err := RankLabel(track, idx)
		if err != nil {
			return "", &PathError{Path: "$.commander.rank." + string(track), Err: err}
		}
		f.Ranks.set(track, label)
	}
	return currentShipID, nil
}

type shipEntry struct {
	id   string
	node Value
}

// canonicalShips accepts ships as a list of objects carrying "id" or as a map
// keyed by id, and returns them ordered by id.
func canonicalShips(raw Value) ([]shipEntry, error) {
	node, err := raw.Field("ships")
	if err != nil {
		return nil, err
	}

	var entries []shipEntry
	switch node.Kind() {
	case KindList:
		items, _ := node.Items()
		for _, item := range items {
			idNode, err := item.Field("id")
			if err != nil {
				return nil, err
			}
			id, err := idNode.Scalar()
			if err != nil {
				return nil, err
			}
			entries = append(entries, shipEntry{id: id, node: item})
		}
	case KindMap:
		for _, id := range node.Keys() {
			item, _ := node.Get(id)
			entries = append(entries, shipEntry{id: id, node: item})
		}
	default:
		return nil, &PathError{Path: node.Path(), Want: KindList, Got: node.Kind(), Err: ErrWrongKind}
	}

	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.id] {
			return nil, &PathError{Path: node.Path(), Err: fmt.Errorf("duplicate ship id %s", e.id)}
		}
		seen[e.id] = true
	}
	sort.SliceStable(entries, func(i, j int) bool { return lessID(entries[i].id, entries[j].id) })
	return entries, nil
}

// lessID orders numeric ids numerically and everything else lexically.
func lessID(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		return ai < bi
	case aerr == nil:
		return true
	case berr == nil:
		return false
	}
	return a < b
}

func (n *Normalizer) fleet(ships []shipEntry, currentShipID string, f *Facts) error {
	found := false
	for _, e := range ships {
		name, err := e.node.StrAt("name")
		if err != nil {
			return err
		}
		rec := ShipRecord{ID: e.id, Name: name, Type: ShipFor(name).Variable}
		if sys, ok := e.node.Get("starsystem"); ok && !sys.IsNull() {
			sysName, err := sys.StrAt("name")
			if err != nil {
				return err
			}
			rec.System = &sysName
		}
		f.Ships = append(f.Ships, rec)

		if e.id == currentShipID {
			found = true
			st := ShipFor(name)
			f.CurrentShip = st.Pretty
			f.PhoneticShip = strings.ToLower(st.Phonetic)
		}
	}
	if !found {
		return fmt.Errorf("current ship %s not in fleet", currentShipID)
	}
	f.NumberOfShips = len(f.Ships)
	return nil
}

func resolveAmbiguous(f *Facts) {
	for _, fam := range Families {
		a, b := fam.Variants[0], fam.Variants[1]
		if f.ShipCounters[a]+f.ShipCounters[b] != 1 {
			f.Ambiguous[fam.Name] = nil
			continue
		}
		if sys := f.Slot(a, 1); sys != nil {
			f.Ambiguous[fam.Name] = sys
		} else {
			f.Ambiguous[fam.Name] = f.Slot(b, 1)
		}
	}
}

func optionalName(raw Value, block string) (*string, bool) {
	node, err := raw.At(block, "name")
	if err != nil {
		return nil, false
	}
	s, err := node.Str()
	if err != nil {
		return nil, false
	}
	return &s, true
}

// location fills the system and starport fields. It returns false when the
// commander is docked but the location blocks are missing; nothing is set then.
func location(raw Value, f *Facts) bool {
	system, haveSystem := optionalName(raw, "lastSystem")
	if !f.Docked {
		if haveSystem {
			f.CurrentSystem = system
		}
		return true
	}

	starport, haveStarport := optionalName(raw, "lastStarport")
	if !haveSystem || !haveStarport {
		return false
	}
	f.CurrentSystem = system
	f.CurrentStarport = starport

	port, _ := raw.Field("lastStarport")
	f.Services = Services{
		Commodities: port.Has("commodities"),
		Shipyard:    port.HasPath("ships", "shipyard_list"),
		Outfitting:  port.Has("modules"),
	}
	return true
}

// enrich adds index ids, coordinates and ship distances. Misses are not errors.
func (n *Normalizer) enrich(f *Facts) {
	if n.lookup == nil || f.CurrentSystem == nil {
		return
	}
	here, ok := n.lookup.Lookup(*f.CurrentSystem)
	if !ok {
		logging.SystemsDebug("system %q not in index", *f.CurrentSystem)
		return
	}
	if here.ID != "" {
		id := here.ID
		f.SystemID = &id
	}
	coords := here.Coords
	f.SystemCoords = &coords
	if f.CurrentStarport != nil {
		if id, ok := here.Stations[*f.CurrentStarport]; ok {
			f.StarportID = &id
		}
	}

	for i := range f.Ships {
		s := &f.Ships[i]
		if s.System == nil {
			continue
		}
		there, ok := n.lookup.Lookup(*s.System)
		if !ok {
			continue
		}
		d := math.Round(here.Coords.DistanceTo(there.Coords)*100) / 100
		s.Distance = &d
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
