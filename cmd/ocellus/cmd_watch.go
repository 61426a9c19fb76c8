package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ocellus/internal/companion"
	"ocellus/internal/eddn"
	"ocellus/internal/profile"
	"ocellus/internal/systems"
)

var watchInterval time.Duration

// pollMargin keeps a default tick from landing just inside the cooldown
// window opened by the previous fetch.
const pollMargin = time.Second

// watchCmd polls the profile until interrupted
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the profile and keep the fact base current",
	Long: `Runs an update every interval (just over the companion cooldown by default). The
system index is reloaded when its file changes. When uploads are enabled,
docked snapshots are sent in the background; a new upload is skipped while
the previous one is still running.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	ctx, stop := signal.NotifyContext(base, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, useFixture)
	if err != nil {
		return err
	}
	defer a.Close()

	watcher, err := systems.NewWatcher(a.index)
	if err != nil {
		logger.Warn("System index watcher unavailable", zap.Error(err))
	} else {
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("System index watcher failed to start", zap.Error(err))
		}
		defer watcher.Stop()
	}

	interval := pollInterval(watchInterval, cfg.GetCooldown())

	uploads := &errgroup.Group{}
	uploads.SetLimit(1)
	defer func() {
		if err := uploads.Wait(); err != nil {
			logger.Warn("Upload failed", zap.Error(err))
		}
	}()

	out := cmd.OutOrStdout()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		updateCtx, cancel := context.WithTimeout(ctx, timeout)
		res, err := a.client.Update(updateCtx)
		cancel()
		if res.Status != companion.StatusThrottled {
			renderFacts(out, res.Facts, res.Status, res.Stale)
		}
		if err != nil {
			logger.Warn("Update failed", zap.String("status", string(res.Status)), zap.Error(err))
			if errors.Is(err, companion.ErrReauthRequired) {
				if outcome, lerr := a.client.Login(ctx); lerr != nil || outcome != companion.OutcomeAuthenticated {
					logger.Warn("Re-login did not complete", zap.Stringer("outcome", outcome), zap.Error(lerr))
				}
			}
		}

		if res.ShouldPublish && cfg.EDDN.Enabled && !useFixture {
			dispatched := uploads.TryGo(func() error {
				upCtx, cancel := context.WithTimeout(context.Background(), cfg.GetEDDNTimeout())
				defer cancel()
				n, err := publish(upCtx, a, res)
				if err != nil {
					logger.Warn("Upload failed", zap.Error(err))
					return nil
				}
				logger.Info("Uploaded station data", zap.Int("messages", n))
				return nil
			})
			if !dispatched {
				logger.Debug("Previous upload still running, skipping")
			}
		}

		select {
		case <-ctx.Done():
			logger.Info("Stopping watch")
			return nil
		case <-ticker.C:
		}
	}
}

// pollInterval is the flag value, or the cooldown plus a margin when unset.
func pollInterval(flag, cooldown time.Duration) time.Duration {
	if flag > 0 {
		return flag
	}
	return cooldown + pollMargin
}

// publish sends one docked snapshot to the relay.
func publish(ctx context.Context, a *app, res companion.UpdateResult) (int, error) {
	raw, err := profile.Parse([]byte(res.Raw))
	if err != nil {
		return 0, err
	}
	id, err := eddn.UploaderID(ctx, a.store)
	if err != nil {
		return 0, err
	}
	p := eddn.NewPublisher(eddn.Config{
		UploadURL:       cfg.EDDN.UploadURL,
		SoftwareName:    cfg.EDDN.SoftwareName,
		SoftwareVersion: cfg.EDDN.SoftwareVersion,
		Timeout:         cfg.GetEDDNTimeout(),
	}, id)
	defer p.Close()
	return p.Publish(ctx, eddn.Snapshot{Facts: res.Facts, Raw: raw, At: time.Now()})
}
