package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ocellus/internal/companion"
)

// loginCmd starts (or confirms) a companion session
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the companion service",
	Long: `Signs in with companion.email and companion.password (or OCELLUS_EMAIL and
OCELLUS_PASSWORD). When the service emails a verification code, finish with
"ocellus verify <code>".`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

// verifyCmd submits the emailed verification code
var verifyCmd = &cobra.Command{
	Use:   "verify [code]",
	Short: "Submit the emailed verification code",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

func runLogin(cmd *cobra.Command, args []string) error {
	return runAuth(cmd, func(ctx context.Context, c *companion.Client) (companion.AuthOutcome, error) {
		return c.Login(ctx)
	})
}

func runVerify(cmd *cobra.Command, args []string) error {
	code := args[0]
	return runAuth(cmd, func(ctx context.Context, c *companion.Client) (companion.AuthOutcome, error) {
		return c.Verify(ctx, code)
	})
}

func runAuth(cmd *cobra.Command, step func(context.Context, *companion.Client) (companion.AuthOutcome, error)) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	outcome, err := step(ctx, a.client)
	logger.Info("Auth exchange finished", zap.Stringer("outcome", outcome), zap.Stringer("state", a.client.State()))
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, statusBadge(outcome.Status()))

	switch outcome {
	case companion.OutcomeNeedsCredentials:
		fmt.Fprintln(out, "Set companion.email and companion.password, then run login again.")
	case companion.OutcomeNeedsVerification:
		fmt.Fprintln(out, "Check your email and run: ocellus verify <code>")
	case companion.OutcomeAuthenticated:
		fmt.Fprintln(out, "Session is authenticated.")
	}
	return err
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(base, timeout)
}
