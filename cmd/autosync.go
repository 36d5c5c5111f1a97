package cmd

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/marcus/brewlog/internal/syncconfig"
)

// AutoSyncEnabled returns true if auto-sync after mutations is enabled.
// Checks BREWLOG_AUTO_SYNC env var. Defaults to true when authenticated.
func AutoSyncEnabled() bool {
	if v := os.Getenv("BREWLOG_AUTO_SYNC"); v != "" {
		return v == "1" || v == "true"
	}
	return true
}

// maybeAutoSync runs a quick sync after a mutating command completes.
// Runs synchronously but with a short timeout. Errors are logged, not
// returned: local writes already landed and sync retries later.
func maybeAutoSync(a *app, userID string) {
	if !AutoSyncEnabled() {
		return
	}
	if a.cfg.SimulationMode() == syncconfig.SimOffline {
		slog.Debug("autosync: offline (simulated)")
		return
	}
	token, err := a.store.LoadToken(userID)
	if err != nil || token == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.coord.Run(ctx, userID); err != nil {
		slog.Debug("autosync", "err", err)
	}
}
