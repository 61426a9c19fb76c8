package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"ocellus/internal/companion"
	"ocellus/internal/profile"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF8C00"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080")).Width(18)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFCC00"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func statusBadge(s companion.Status) string {
	switch s {
	case companion.StatusOK:
		return okStyle.Render(string(s))
	case companion.StatusThrottled, companion.StatusLocationUnknown,
		companion.StatusNeedsCredentials, companion.StatusNeedsVerification:
		return warnStyle.Render(string(s))
	}
	return errStyle.Render(string(s))
}

func row(label string, value interface{}) string {
	return labelStyle.Render(label) + fmt.Sprint(value)
}

func orNone(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

// renderFacts prints a summary box for one update.
func renderFacts(w io.Writer, f *profile.Facts, status companion.Status, stale bool) {
	header := titleStyle.Render("CMDR") + " " + statusBadge(status)
	if stale {
		header += " " + warnStyle.Render("(stale)")
	}
	if f == nil {
		fmt.Fprintln(w, boxStyle.Render(header+"\nno profile read yet"))
		return
	}

	lines := []string{
		header,
		row("Commander", f.Commander),
		row("Credits", fmt.Sprintf("%d (debt %d)", f.Credits, f.Debt)),
		row("Ship", fmt.Sprintf("%s [%s]", f.CurrentShip, f.CurrentShipID)),
		row("Fleet", f.NumberOfShips),
		row("Cargo", fmt.Sprintf("%d/%d", f.CargoQuantity, f.CargoCapacity)),
		row("Docked", f.Docked),
		row("System", orNone(f.CurrentSystem)),
		row("Starport", orNone(f.CurrentStarport)),
	}
	for _, track := range profile.RankTracks {
		lines = append(lines, row("Rank "+string(track), f.Ranks.Get(track)))
	}

	var fams []string
	for name, sys := range f.Ambiguous {
		if sys != nil {
			fams = append(fams, name+"@"+*sys)
		}
	}
	if len(fams) > 0 {
		sort.Strings(fams)
		lines = append(lines, row("Ambiguous", strings.Join(fams, ", ")))
	}

	fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
}
