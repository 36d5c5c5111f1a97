package cmd

import (
	"fmt"
	"time"

	"github.com/marcus/brewlog/internal/output"
	brewsync "github.com/marcus/brewlog/internal/sync"
	"github.com/spf13/cobra"
)

var watchInterval time.Duration

// watchCmd keeps a foreground process probing connectivity and syncing
// on reconnect. It is the CLI's stand-in for an app lifecycle: the
// probe loop plays the network callback and each tick plays foreground.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch connectivity and sync on reconnect",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		userID, err := a.requireUser()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		mon := a.monitor()
		mon.OnReconnect(func() {
			output.Info("reconnected, syncing")
			a.coord.OnReconnect(ctx, userID)
		})

		a.coord.Subscribe(func(_ string, s brewsync.Status) {
			switch s.State {
			case brewsync.StateSuccess:
				output.Info("synced: %d pushed, %d pulled", s.Pushed, s.Pulled)
			case brewsync.StateFailed:
				output.Warning("sync failed: %s", s.LastError)
			}
		})

		fmt.Printf("watching (probe every %s, ctrl-c to stop)\n", watchInterval)
		go mon.Watch(ctx, watchInterval)

		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				a.coord.OnForeground(ctx, userID)
			}
		}
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 30*time.Second, "probe interval")
	syncCmd.AddCommand(watchCmd)
}
