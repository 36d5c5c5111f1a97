package cmd

import (
	"fmt"

	"github.com/marcus/brewlog/internal/models"
	"github.com/marcus/brewlog/internal/output"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show cache, queue, and connectivity overview",
	GroupID: "core",
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

		output.Title("brewlog status")

		for _, typ := range models.EntityTypes {
			entities, err := a.store.ListByType(userID, typ)
			if err != nil {
				return err
			}
			dirty := 0
			for _, e := range entities {
				if e.Dirty {
					dirty++
				}
			}
			line := fmt.Sprintf("  %-18s %d", typ, len(entities))
			if dirty > 0 {
				line += fmt.Sprintf(" (%d un-synced)", dirty)
			}
			fmt.Println(line)
		}

		pending, err := a.store.CountPending(userID)
		if err != nil {
			return err
		}
		fmt.Printf("  pending ops        %d\n", pending)

		mon := a.monitor()
		if mon.Online(cmd.Context()) {
			fmt.Println("  network            online")
		} else {
			output.Subtle("  network            offline")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
