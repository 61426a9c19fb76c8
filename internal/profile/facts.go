package profile

import (
	"ocellus/internal/mangle"
	"ocellus/internal/systems"
)

// ShipRecord is one hull of the fleet, rebuilt every pass.
type ShipRecord struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	System   *string  `json:"system"`
	Distance *float64 `json:"distance"`
}

// Services flags what the docked starport offers.
type Services struct {
	Commodities bool `json:"commodities"`
	Shipyard    bool `json:"shipyard"`
	Outfitting  bool `json:"outfitting"`
}

// Facts is the flat result of one normalization pass.
type Facts struct {
	Commander     string `json:"commander"`
	Credits       int64  `json:"credits"`
	Debt          int64  `json:"debt"`
	CurrentShipID string `json:"current_ship_id"`
	Docked        bool   `json:"docked"`
	Ranks         Ranks  `json:"ranks"`

	CurrentShip   string `json:"current_ship"`
	PhoneticShip  string `json:"phonetic_ship"`
	NumberOfShips int    `json:"number_of_ships"`
	CargoCapacity int64  `json:"cargo_capacity"`
	CargoQuantity int64  `json:"cargo_quantity"`

	Ships        []ShipRecord         `json:"ships"`
	ShipCounters map[string]int       `json:"ship_counters"`
	ShipSlots    map[string][]*string `json:"ship_slots"`
	Ambiguous    map[string]*string   `json:"ambiguous"`

	Loadout Loadout `json:"loadout"`

	CurrentSystem   *string         `json:"current_system"`
	CurrentStarport *string         `json:"current_starport"`
	Services        Services        `json:"services"`
	SystemCoords    *systems.Coords `json:"system_coords"`
	SystemID        *string         `json:"system_id"`
	StarportID      *string         `json:"starport_id"`
}

// NewFacts returns the reset state every pass starts from: each known hull
// has a zero counter and a null first slot, each family is null.
func NewFacts() *Facts {
	f := &Facts{
		Ships:        []ShipRecord{},
		ShipCounters: make(map[string]int),
		ShipSlots:    make(map[string][]*string),
		Ambiguous:    make(map[string]*string),
	}
	for _, v := range ShipVariables() {
		f.ShipCounters[v] = 0
		f.ShipSlots[v] = []*string{nil}
	}
	for _, fam := range Families {
		f.Ambiguous[fam.Name] = nil
	}
	return f
}

// Slot returns the system of the n-th (1-based) ship of a type.
func (f *Facts) Slot(shipType string, n int) *string {
	slots := f.ShipSlots[shipType]
	if n < 1 || n > len(slots) {
		return nil
	}
	return slots[n-1]
}

func (f *Facts) addShipSlot(shipType string, system *string) {
	f.ShipCounters[shipType]++
	n := f.ShipCounters[shipType]
	slots := f.ShipSlots[shipType]
	if n == 1 {
		if len(slots) == 0 {
			slots = []*string{nil}
		}
		slots[0] = system
	} else {
		slots = append(slots, system)
	}
	f.ShipSlots[shipType] = slots
}

var moduleFlags = []struct {
	name string
	get  func(Loadout) bool
}{
	{"/cargo_scanner", func(l Loadout) bool { return l.HasCargoScanner }},
	{"/frame_shift_wake_scanner", func(l Loadout) bool { return l.HasFrameShiftWakeScanner }},
	{"/kill_warrant_scanner", func(l Loadout) bool { return l.HasKillWarrantScanner }},
	{"/shield_booster", func(l Loadout) bool { return l.HasShieldBooster }},
	{"/chaff_launcher", func(l Loadout) bool { return l.HasChaffLauncher }},
	{"/electronic_countermeasures", func(l Loadout) bool { return l.HasElectronicCountermeasures }},
	{"/heat_sink_launcher", func(l Loadout) bool { return l.HasHeatSinkLauncher }},
	{"/point_defence", func(l Loadout) bool { return l.HasPointDefence }},
}

func boolName(b bool) string {
	if b {
		return "/true"
	}
	return "/false"
}

// MangleFacts renders the facts as atoms for the profile schema. Null fields
// produce no atom, so a field reset to null drops its fact on replace.
func (f *Facts) MangleFacts(status string) []mangle.Fact {
	var out []mangle.Fact
	add := func(pred string, args ...interface{}) {
		out = append(out, mangle.Fact{Predicate: pred, Args: args})
	}

	add("profile_status", "/"+status)
	add("commander", f.Commander, f.Credits, f.Debt)
	for _, track := range RankTracks {
		add("rank", "/"+string(track), f.Ranks.Get(track))
	}
	add("docked", boolName(f.Docked))
	add("current_ship", f.CurrentShipID, f.CurrentShip, f.PhoneticShip)
	add("fleet_size", int64(f.NumberOfShips))
	add("cargo", f.CargoCapacity, f.CargoQuantity)

	for _, s := range f.Ships {
		add("ship", s.ID, s.Type, s.Name)
		if s.System != nil {
			add("ship_location", s.ID, *s.System)
		}
		if s.Distance != nil {
			add("ship_distance", s.ID, *s.Distance)
		}
	}
	for _, shipType := range sortedKeys(f.ShipCounters) {
		add("ship_counter", shipType, int64(f.ShipCounters[shipType]))
		for i, sys := range f.ShipSlots[shipType] {
			if sys != nil {
				add("ship_slot", shipType, int64(i+1), *sys)
			}
		}
	}
	for _, fam := range Families {
		if sys := f.Ambiguous[fam.Name]; sys != nil {
			add("ambiguous_ship", fam.Name, *sys)
		}
	}

	if f.Loadout.Bulkheads != "" {
		add("bulkheads", f.Loadout.Bulkheads)
	}
	for _, s := range StandardSlots {
		spec := s.Spec(f.Loadout)
		if spec.Rating != "" {
			add("module", "/"+s.Name, int64(spec.Class), spec.Rating)
		}
	}
	for _, m := range moduleFlags {
		if m.get(f.Loadout) {
			add("has_module", m.name)
		}
	}

	if f.CurrentSystem != nil {
		add("current_system", *f.CurrentSystem)
	}
	if f.CurrentStarport != nil {
		add("current_starport", *f.CurrentStarport)
		if f.Services.Commodities {
			add("starport_service", "/commodities")
		}
		if f.Services.Shipyard {
			add("starport_service", "/shipyard")
		}
		if f.Services.Outfitting {
			add("starport_service", "/outfitting")
		}
	}
	if f.SystemCoords != nil {
		add("system_coords", f.SystemCoords.X, f.SystemCoords.Y, f.SystemCoords.Z)
	}
	if f.SystemID != nil {
		add("eddb_system_id", *f.SystemID)
	}
	if f.StarportID != nil {
		add("eddb_starport_id", *f.StarportID)
	}
	return out
}
