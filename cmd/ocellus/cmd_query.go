package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// queryCmd queries the persisted fact base
var queryCmd = &cobra.Command{
	Use:   "query [atom]",
	Short: "Query the fact base",
	Long: `Evaluates one atom against the facts from the last update. Constants
filter, variables bind, _ is ignored.

Example:
  ocellus query 'rank(/combat, Label)'
  ocellus query 'ship_here(Id, Type)'
  ocellus query 'ambiguous_ship(Family, System)'`,
	Args: cobra.ExactArgs(1),
	RunE: queryFacts,
}

func queryFacts(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("Querying facts", zap.String("query", args[0]))
	res, err := a.engine.Query(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(res.Bindings) == 0 {
		fmt.Fprintln(out, "No facts found")
		return nil
	}
	for _, b := range res.Bindings {
		names := make([]string, 0, len(b))
		for name := range b {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = fmt.Sprintf("%s=%v", name, b[name])
		}
		if len(parts) == 0 {
			parts = []string{"true"}
		}
		fmt.Fprintln(out, strings.Join(parts, " "))
	}
	return nil
}
