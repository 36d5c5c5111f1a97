package cmd

import (
	"encoding/json"
	"time"

	"github.com/marcus/brewlog/internal/models"
	"github.com/marcus/brewlog/internal/output"
	"github.com/spf13/cobra"
)

var brewCmd = &cobra.Command{
	Use:     "brew",
	Aliases: []string{"b"},
	Short:   "Manage brew sessions",
	GroupID: "core",
}

var brewAddFlags struct {
	recipe string
	og     float64
	fg     float64
	volume float64
	notes  string
}

var brewAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Record a brew session",
	Args:  cobra.ExactArgs(1),
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

		var recipeID string
		if brewAddFlags.recipe != "" {
			recipeID, err = resolveID(a, userID, models.TypeRecipe, brewAddFlags.recipe)
			if err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		id, err := createEntity(a, userID, models.TypeBrewSession, models.BrewSession{
			RecipeID:     recipeID,
			Name:         args[0],
			BrewedAt:     &now,
			MeasuredOG:   brewAddFlags.og,
			MeasuredFG:   brewAddFlags.fg,
			VolumeLiters: brewAddFlags.volume,
			Notes:        brewAddFlags.notes,
		})
		if err != nil {
			output.Error("add brew session: %v", err)
			return err
		}
		output.Success("Recorded brew %s (%s)", args[0], shortID(id))
		return nil
	},
}

var brewEditFlags struct {
	og     float64
	fg     float64
	volume float64
	notes  string
}

var brewEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit a brew session",
	Args:  cobra.ExactArgs(1),
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
		id, err := resolveID(a, userID, models.TypeBrewSession, args[0])
		if err != nil {
			return err
		}
		e, err := a.store.Get(userID, models.TypeBrewSession, id)
		if err != nil {
			return err
		}
		var b models.BrewSession
		if err := json.Unmarshal(e.Payload, &b); err != nil {
			return err
		}
		if cmd.Flags().Changed("og") {
			b.MeasuredOG = brewEditFlags.og
		}
		if cmd.Flags().Changed("fg") {
			b.MeasuredFG = brewEditFlags.fg
		}
		if cmd.Flags().Changed("volume") {
			b.VolumeLiters = brewEditFlags.volume
		}
		if cmd.Flags().Changed("notes") {
			b.Notes = brewEditFlags.notes
		}
		raw, err := json.Marshal(b)
		if err != nil {
			return err
		}
		if err := updateEntity(a, userID, models.TypeBrewSession, id, raw); err != nil {
			output.Error("edit brew session: %v", err)
			return err
		}
		output.Success("Updated brew %s", shortID(id))
		return nil
	},
}

var brewListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List brew sessions",
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
		return listEntities(a, userID, models.TypeBrewSession, func(raw json.RawMessage) string {
			var b models.BrewSession
			json.Unmarshal(raw, &b)
			return b.Name
		})
	},
}

var brewShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a brew session",
	Args:  cobra.ExactArgs(1),
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
		id, err := resolveID(a, userID, models.TypeBrewSession, args[0])
		if err != nil {
			return err
		}
		return showEntity(a, userID, models.TypeBrewSession, id)
	},
}

var brewRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a brew session",
	Args:    cobra.ExactArgs(1),
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
		id, err := resolveID(a, userID, models.TypeBrewSession, args[0])
		if err != nil {
			return err
		}
		if err := removeEntity(a, userID, models.TypeBrewSession, id); err != nil {
			output.Error("delete brew session: %v", err)
			return err
		}
		output.Success("Deleted brew %s", shortID(id))
		return nil
	},
}

func init() {
	brewAddCmd.Flags().StringVar(&brewAddFlags.recipe, "recipe", "", "recipe id the session brews")
	brewAddCmd.Flags().Float64Var(&brewAddFlags.og, "og", 0, "measured original gravity")
	brewAddCmd.Flags().Float64Var(&brewAddFlags.fg, "fg", 0, "measured final gravity")
	brewAddCmd.Flags().Float64Var(&brewAddFlags.volume, "volume", 0, "batch volume in liters")
	brewAddCmd.Flags().StringVar(&brewAddFlags.notes, "notes", "", "free-form notes")

	brewEditCmd.Flags().Float64Var(&brewEditFlags.og, "og", 0, "measured original gravity")
	brewEditCmd.Flags().Float64Var(&brewEditFlags.fg, "fg", 0, "measured final gravity")
	brewEditCmd.Flags().Float64Var(&brewEditFlags.volume, "volume", 0, "batch volume in liters")
	brewEditCmd.Flags().StringVar(&brewEditFlags.notes, "notes", "", "free-form notes")

	brewCmd.AddCommand(brewAddCmd)
	brewCmd.AddCommand(brewEditCmd)
	brewCmd.AddCommand(brewListCmd)
	brewCmd.AddCommand(brewShowCmd)
	brewCmd.AddCommand(brewRmCmd)
	rootCmd.AddCommand(brewCmd)
}
