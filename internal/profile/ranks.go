package profile

import "fmt"

// RankTrack names one of the commander's rank ladders.
type RankTrack string

const (
	RankCombat     RankTrack = "combat"
	RankTrade      RankTrack = "trade"
	RankExplore    RankTrack = "explore"
	RankCQC        RankTrack = "cqc"
	RankFederation RankTrack = "federation"
	RankEmpire     RankTrack = "empire"
	RankPower      RankTrack = "power"
)

// RankTracks lists every track in the order they are reported.
var RankTracks = []RankTrack{
	RankCombat, RankTrade, RankExplore, RankCQC, RankFederation, RankEmpire, RankPower,
}

var rankTables = map[RankTrack][]string{
	RankCombat: {
		"Harmless", "Mostly Harmless", "Novice", "Competent", "Expert",
		"Master", "Dangerous", "Deadly", "Elite",
	},
	RankTrade: {
		"Penniless", "Mostly Penniless", "Peddler", "Dealer", "Merchant",
		"Broker", "Entrepreneur", "Tycoon", "Elite",
	},
	RankExplore: {
		"Aimless", "Mostly Aimless", "Scout", "Surveyor", "Trailblazer",
		"Pathfinder", "Ranger", "Pioneer", "Elite",
	},
	RankCQC: {
		"Helpless", "Mostly Helpless", "Amateur", "Semi Professional", "Professional",
		"Champion", "Hero", "Legend", "Elite",
	},
	RankFederation: {
		"None", "Recruit", "Cadet", "Midshipman", "Petty Officer",
		"Chief Petty Officer", "Warrant Officer", "Ensign", "Lieutenant",
		"Lieutenant Commander", "Post Commander", "Post Captain",
		"Rear Admiral", "Vice Admiral", "Admiral",
	},
	RankEmpire: {
		"None", "Outsider", "Serf", "Master", "Squire", "Knight", "Lord",
		"Baron", "Viscount", "Count", "Earl", "Marquis", "Duke", "Prince", "King",
	},
	RankPower: {
		"None", "Rating 1", "Rating 2", "Rating 3", "Rating 4", "Rating 5",
	},
}

// RankLabel maps a numeric rank to its label. Indexes outside the table are
// an error rather than being clamped.
func RankLabel(track RankTrack, index int64) (string, error) {
	table, ok := rankTables[track]
	if !ok {
		return "", fmt.Errorf("unknown rank track %q", track)
	}
	if index < 0 || index >= int64(len(table)) {
		return "", fmt.Errorf("%s rank %d out of range [0,%d]", track, index, len(table)-1)
	}
	return table[index], nil
}

// Ranks holds the label of every rank track.
type Ranks struct {
	Combat     string `json:"combat"`
	Trade      string `json:"trade"`
	Explore    string `json:"explore"`
	CQC        string `json:"cqc"`
	Federation string `json:"federation"`
	Empire     string `json:"empire"`
	Power      string `json:"power"`
}

func (r *Ranks) set(track RankTrack, label string) {
	switch track {
	case RankCombat:
		r.Combat = label
	case RankTrade:
		r.Trade = label
	case RankExplore:
		r.Explore = label
	case RankCQC:
		r.CQC = label
	case RankFederation:
		r.Federation = label
	case RankEmpire:
		r.Empire = label
	case RankPower:
		r.Power = label
	}
}

// Get returns the label for track.
func (r Ranks) Get(track RankTrack) string {
	switch track {
	case RankCombat:
		return r.Combat
	case RankTrade:
		return r.Trade
	case RankExplore:
		return r.Explore
	case RankCQC:
		return r.CQC
	case RankFederation:
		return r.Federation
	case RankEmpire:
		return r.Empire
	case RankPower:
		return r.Power
	}
	return ""
}
