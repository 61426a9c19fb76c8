package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ocellus/internal/companion"
	"ocellus/internal/mangle"
)

var (
	useFixture bool
	asJSON     bool
)

// profileCmd runs one update cycle
var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Download the profile and refresh the fact base",
	Long: `Runs one update: fetch (or reuse within the cooldown window), normalize,
and replace the profile facts. The raw body is archived to the store and to
paths.profile_dump.`,
	Args: cobra.NoArgs,
	RunE: runProfile,
}

// statusCmd shows what is stored locally
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session, snapshot and fact base status",
	Args:  cobra.NoArgs,
	RunE:  showStatus,
}

func runProfile(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx, cfg, useFixture)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.client.Update(ctx)
	logger.Info("Update finished", zap.String("status", string(res.Status)), zap.Bool("stale", res.Stale))

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(struct {
			Status companion.Status `json:"status"`
			Stale  bool             `json:"stale"`
			Facts  interface{}      `json:"facts"`
		}{res.Status, res.Stale, res.Facts}); encErr != nil {
			return encErr
		}
	} else {
		renderFacts(out, res.Facts, res.Status, res.Stale)
	}

	if res.ShouldPublish && cfg.EDDN.Enabled && !useFixture {
		if n, perr := publish(ctx, a, res); perr != nil {
			logger.Warn("Upload failed", zap.Error(perr))
		} else {
			logger.Info("Uploaded station data", zap.Int("messages", n))
		}
	}
	return err
}

func showStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render("ocellus status"))
	fmt.Fprintln(out, row("Store", a.store.Path()))

	sess := a.client.Session()
	fmt.Fprintln(out, row("Session", fmt.Sprintf("%d cookie(s)", sess.Len())))

	snap, ok, err := a.store.LatestSnapshot(ctx)
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintln(out, row("Last profile", snap.FetchedAt.Local().Format("2006-01-02 15:04:05")))
	} else {
		fmt.Fprintln(out, row("Last profile", "never"))
	}

	visits, err := a.store.VisitedSystems(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, row("Systems visited", len(visits)))

	if a.index.Loaded() {
		fmt.Fprintln(out, row("System index", fmt.Sprintf("%d systems", a.index.Len())))
	} else {
		fmt.Fprintln(out, row("System index", "not loaded"))
	}

	stats := a.engine.GetStats()
	fmt.Fprintln(out, row("Facts", fmt.Sprintf("%d (profile %d, visited %d)",
		stats.TotalFacts, stats.Scopes[mangle.ScopeProfile], stats.Scopes[mangle.ScopeVisited])))

	preds := make([]string, 0, len(stats.PredicateCounts))
	for p := range stats.PredicateCounts {
		preds = append(preds, p)
	}
	sort.Strings(preds)
	for _, p := range preds {
		logger.Debug("Predicate", zap.String("name", p), zap.Int("facts", stats.PredicateCounts[p]))
	}
	return nil
}
