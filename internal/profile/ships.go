package profile

import (
	"sort"
	"strings"
)

// ShipType describes one hull as the companion service names it.
type ShipType struct {
	// Frontier is the lowercase internal identifier returned by the service.
	Frontier string
	// Variable is the stable key used for counters and slots.
	Variable string
	Pretty   string
	Phonetic string
}

var shipTable = []ShipType{
	{"sidewinder", "Sidewinder", "Sidewinder", "Sidewinder"},
	{"eagle", "Eagle", "Eagle", "Eagle"},
	{"hauler", "Hauler", "Hauler", "Hauler"},
	{"adder", "Adder", "Adder", "Adder"},
	{"empire_eagle", "ImperialEagle", "Imperial Eagle", "Imperial Eagle"},
	{"viper", "ViperMkIII", "Viper Mk III", "Viper Mark 3"},
	{"cobramkiii", "CobraMkIII", "Cobra Mk III", "Cobra Mark 3"},
	{"viper_mkiv", "ViperMkIV", "Viper Mk IV", "Viper Mark 4"},
	{"diamondback", "DiamondbackScout", "Diamondback Scout", "Diamondback Scout"},
	{"cobramkiv", "CobraMkIV", "Cobra Mk IV", "Cobra Mark 4"},
	{"type6", "Type6", "Type-6 Transporter", "Type 6"},
	{"dolphin", "Dolphin", "Dolphin", "Dolphin"},
	{"diamondbackxl", "DiamondbackExplorer", "Diamondback Explorer", "Diamondback Explorer"},
	{"empire_courier", "ImperialCourier", "Imperial Courier", "Imperial Courier"},
	{"independant_trader", "Keelback", "Keelback", "Keelback"},
	{"asp_scout", "AspScout", "Asp Scout", "Asp Scout"},
	{"vulture", "Vulture", "Vulture", "Vulture"},
	{"asp", "AspExplorer", "Asp Explorer", "Asp Explorer"},
	{"federation_dropship", "FederalDropship", "Federal Dropship", "Federal Dropship"},
	{"type7", "Type7", "Type-7 Transporter", "Type 7"},
	{"federation_dropship_mkii", "FederalAssaultShip", "Federal Assault Ship", "Federal Assault Ship"},
	{"empire_trader", "ImperialClipper", "Imperial Clipper", "Imperial Clipper"},
	{"federation_gunship", "FederalGunship", "Federal Gunship", "Federal Gunship"},
	{"orca", "Orca", "Orca", "Orca"},
	{"ferdelance", "FerDeLance", "Fer-de-Lance", "Fer de Lance"},
	{"python", "Python", "Python", "Python"},
	{"type9", "Type9", "Type-9 Heavy", "Type 9"},
	{"belugaliner", "BelugaLiner", "Beluga Liner", "Beluga"},
	{"anaconda", "Anaconda", "Anaconda", "Anaconda"},
	{"federation_corvette", "FederalCorvette", "Federal Corvette", "Federal Corvette"},
	{"cutter", "ImperialCutter", "Imperial Cutter", "Imperial Cutter"},
}

var shipsByFrontier = func() map[string]ShipType {
	m := make(map[string]ShipType, len(shipTable))
	for _, s := range shipTable {
		m[s.Frontier] = s
	}
	return m
}()

// LookupShip finds a hull by its service identifier, case-insensitively.
func LookupShip(name string) (ShipType, bool) {
	s, ok := shipsByFrontier[strings.ToLower(name)]
	return s, ok
}

// ShipFor always returns a ShipType. Hulls missing from the table keep the
// raw identifier for every name so new ships still get counters and slots.
func ShipFor(name string) ShipType {
	if s, ok := LookupShip(name); ok {
		return s
	}
	return ShipType{Frontier: strings.ToLower(name), Variable: name, Pretty: name, Phonetic: name}
}

// ShipVariables returns the variable name of every known hull, sorted.
func ShipVariables() []string {
	out := make([]string, 0, len(shipTable))
	for _, s := range shipTable {
		out = append(out, s.Variable)
	}
	sort.Strings(out)
	return out
}

// Family is a pair of hulls players call by one name. Variants are listed in
// the order their first slot is consulted.
type Family struct {
	Name     string
	Variants [2]string
}

// Families lists the ambiguous ship families.
var Families = []Family{
	{Name: "Viper", Variants: [2]string{"ViperMkIII", "ViperMkIV"}},
	{Name: "Cobra", Variants: [2]string{"CobraMkIII", "CobraMkIV"}},
	{Name: "Diamondback", Variants: [2]string{"DiamondbackScout", "DiamondbackExplorer"}},
	{Name: "Asp", Variants: [2]string{"AspExplorer", "AspScout"}},
	{Name: "Eagle", Variants: [2]string{"Eagle", "ImperialEagle"}},
}
