package cmd

import (
	"fmt"

	"github.com/marcus/brewlog/internal/auth"
	"github.com/marcus/brewlog/internal/output"
	"github.com/marcus/brewlog/internal/syncconfig"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Sync local changes with the server",
	GroupID: "sync",
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

		if a.cfg.SimulationMode() == syncconfig.SimOffline {
			output.Warning("offline (simulated); changes stay queued")
			return nil
		}

		// Beyond-grace and invalid tokens force logout before any
		// network traffic happens.
		status, err := a.auth.Refresh(userID)
		if err != nil {
			return err
		}
		if status != auth.StatusAuthenticated && status != auth.StatusExpired {
			return fmt.Errorf("session ended; run 'brewlog auth login'")
		}

		if err := a.coord.Run(cmd.Context(), userID); err != nil {
			output.Error("sync: %v", err)
			return err
		}

		st := a.coord.Status(userID)
		output.Success("Synced: %d pushed, %d pulled", st.Pushed, st.Pulled)
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync queue and last run",
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

		pending, err := a.store.CountPending(userID)
		if err != nil {
			return err
		}
		fmt.Printf("Pending operations: %d\n", pending)

		last, err := a.store.LastSyncRun(userID)
		if err != nil {
			return err
		}
		if last == nil {
			fmt.Println("Last sync: never")
			return nil
		}
		fmt.Printf("Last sync: %s (%s)\n", output.RelativeTime(last.FinishedAt), last.Status)
		fmt.Printf("  pushed %d, pulled %d, failed %d\n", last.Pushed, last.Pulled, last.Failed)
		if last.Error != "" {
			output.Warning("  %s", last.Error)
		}
		return nil
	},
}

var syncConflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Show recent dirty-overwrite conflicts",
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

		conflicts, err := a.store.RecentConflicts(userID, 20)
		if err != nil {
			return err
		}
		if len(conflicts) == 0 {
			fmt.Println("No conflicts recorded.")
			return nil
		}
		for _, c := range conflicts {
			fmt.Printf("%s %s: local v%d overwritten by remote v%d (%s)\n",
				c.EntityType, c.EntityID, c.LocalVersion, c.RemoteVersion,
				c.OverwrittenAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var syncDeadCmd = &cobra.Command{
	Use:   "dead",
	Short: "Show operations rejected permanently by the server",
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

		dead, err := a.store.DeadOperations(userID, 20)
		if err != nil {
			return err
		}
		if len(dead) == 0 {
			fmt.Println("No dead operations.")
			return nil
		}
		for _, d := range dead {
			output.Warning("%s %s %s: %s", d.Kind, d.EntityType, d.EntityID, d.LastError)
		}
		return nil
	},
}

func init() {
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncConflictsCmd)
	syncCmd.AddCommand(syncDeadCmd)
	rootCmd.AddCommand(syncCmd)
}
