package profile

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ModuleSpec is a standard module's size class and letter rating.
type ModuleSpec struct {
	Class  int    `json:"class"`
	Rating string `json:"rating"`
}

// Loadout is the decoded module fit of the active ship.
type Loadout struct {
	Bulkheads        string     `json:"bulkheads"`
	PowerPlant       ModuleSpec `json:"power_plant"`
	Thrusters        ModuleSpec `json:"thrusters"`
	FrameShiftDrive  ModuleSpec `json:"frame_shift_drive"`
	LifeSupport      ModuleSpec `json:"life_support"`
	PowerDistributor ModuleSpec `json:"power_distributor"`
	Sensors          ModuleSpec `json:"sensors"`
	FuelTank         ModuleSpec `json:"fuel_tank"`

	HasCargoScanner              bool `json:"has_cargo_scanner"`
	HasFrameShiftWakeScanner     bool `json:"has_frame_shift_wake_scanner"`
	HasKillWarrantScanner        bool `json:"has_kill_warrant_scanner"`
	HasShieldBooster             bool `json:"has_shield_booster"`
	HasChaffLauncher             bool `json:"has_chaff_launcher"`
	HasElectronicCountermeasures bool `json:"has_electronic_countermeasures"`
	HasHeatSinkLauncher          bool `json:"has_heat_sink_launcher"`
	HasPointDefence              bool `json:"has_point_defence"`
}

// StandardSlot pairs a service slot key with the module it holds.
type StandardSlot struct {
	Slot string
	Name string
	get  func(*Loadout) *ModuleSpec
}

// StandardSlots lists the seven rated standard slots. Armour is decoded
// separately since it carries a grade instead of a class.
var StandardSlots = []StandardSlot{
	{"PowerPlant", "power_plant", func(l *Loadout) *ModuleSpec { return &l.PowerPlant }},
	{"MainEngines", "thrusters", func(l *Loadout) *ModuleSpec { return &l.Thrusters }},
	{"FrameShiftDrive", "frame_shift_drive", func(l *Loadout) *ModuleSpec { return &l.FrameShiftDrive }},
	{"LifeSupport", "life_support", func(l *Loadout) *ModuleSpec { return &l.LifeSupport }},
	{"PowerDistributor", "power_distributor", func(l *Loadout) *ModuleSpec { return &l.PowerDistributor }},
	{"Radar", "sensors", func(l *Loadout) *ModuleSpec { return &l.Sensors }},
	{"FuelTank", "fuel_tank", func(l *Loadout) *ModuleSpec { return &l.FuelTank }},
}

// Spec returns the decoded module for slot.
func (s StandardSlot) Spec(l Loadout) ModuleSpec { return *s.get(&l) }

var ratings = map[int]string{1: "E", 2: "D", 3: "C", 4: "B", 5: "A"}

var sizeClassRe = regexp.MustCompile(`(?i)_size(\d+)_class(\d+)`)

// decodeRated parses names like Int_Powerplant_Size6_Class5 into {6, A}.
func decodeRated(name string) (ModuleSpec, error) {
	m := sizeClassRe.FindStringSubmatch(name)
	if m == nil {
		return ModuleSpec{}, fmt.Errorf("module %q has no size/class", name)
	}
	size, _ := strconv.Atoi(m[1])
	class, _ := strconv.Atoi(m[2])
	rating, ok := ratings[class]
	if !ok {
		return ModuleSpec{}, fmt.Errorf("module %q has unknown class %d", name, class)
	}
	return ModuleSpec{Class: size, Rating: rating}, nil
}

var bulkheadGrades = []struct {
	marker string
	label  string
}{
	{"_armour_grade1", "Lightweight Alloy"},
	{"_armour_grade2", "Reinforced Alloy"},
	{"_armour_grade3", "Military Grade Composite"},
	{"_armour_mirrored", "Mirrored Surface Composite"},
	{"_armour_reactive", "Reactive Surface Composite"},
}

func decodeBulkheads(name string) (string, error) {
	lower := strings.ToLower(name)
	for _, g := range bulkheadGrades {
		if strings.Contains(lower, g.marker) {
			return g.label, nil
		}
	}
	return "", fmt.Errorf("unknown bulkheads %q", name)
}

var optionalPrefixes = []struct {
	prefix string
	set    func(*Loadout)
}{
	{"hpt_cargoscanner", func(l *Loadout) { l.HasCargoScanner = true }},
	{"hpt_cloudscanner", func(l *Loadout) { l.HasFrameShiftWakeScanner = true }},
	{"hpt_crimescanner", func(l *Loadout) { l.HasKillWarrantScanner = true }},
	{"hpt_shieldbooster", func(l *Loadout) { l.HasShieldBooster = true }},
	{"hpt_chafflauncher", func(l *Loadout) { l.HasChaffLauncher = true }},
	{"hpt_electroniccountermeasure", func(l *Loadout) { l.HasElectronicCountermeasures = true }},
	{"hpt_heatsinklauncher", func(l *Loadout) { l.HasHeatSinkLauncher = true }},
	{"hpt_plasmapointdefence", func(l *Loadout) { l.HasPointDefence = true }},
}

// moduleName returns the installed module name of a slot, or "" when the slot
// is empty.
func moduleName(slot Value) (string, error) {
	if slot.IsNull() || !slot.Has("module") {
		return "", nil
	}
	mod, _ := slot.Get("module")
	if mod.IsNull() {
		return "", nil
	}
	return mod.StrAt("name")
}

// DecodeLoadout reads ship.modules of the raw profile.
func DecodeLoadout(raw Value) (Loadout, error) {
	var l Loadout

	modules, err := raw.At("ship", "modules")
	if err != nil {
		return l, err
	}
	if modules.Kind() != KindMap {
		return l, modules.wrongKind(KindMap)
	}

	armour, err := modules.Field("Armour")
	if err != nil {
		return l, err
	}
	name, err := moduleName(armour)
	if err != nil {
		return l, err
	}
	if l.Bulkheads, err = decodeBulkheads(name); err != nil {
		return l, &PathError{Path: armour.Path(), Err: err}
	}

	for _, s := range StandardSlots {
		slot, err := modules.Field(s.Slot)
		if err != nil {
			return l, err
		}
		name, err := moduleName(slot)
		if err != nil {
			return l, err
		}
		spec, err := decodeRated(name)
		if err != nil {
			return l, &PathError{Path: slot.Path(), Err: err}
		}
		*s.get(&l) = spec
	}

	for _, key := range modules.Keys() {
		slot, _ := modules.Get(key)
		name, err := moduleName(slot)
		if err != nil {
			return l, err
		}
		lower := strings.ToLower(name)
		for _, o := range optionalPrefixes {
			if strings.HasPrefix(lower, o.prefix) {
				o.set(&l)
			}
		}
	}

	return l, nil
}
