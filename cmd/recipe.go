package cmd

import (
	"encoding/json"

	"github.com/marcus/brewlog/internal/models"
	"github.com/marcus/brewlog/internal/output"
	"github.com/spf13/cobra"
)

var recipeCmd = &cobra.Command{
	Use:     "recipe",
	Aliases: []string{"r"},
	Short:   "Manage recipes",
	GroupID: "core",
}

var recipeAddFlags struct {
	style       string
	batchLiters float64
	targetOG    float64
	targetFG    float64
	ibu         float64
	boilMinutes int
	fermentDays int
	notes       string
}

var recipeAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a recipe",
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

		id, err := createEntity(a, userID, models.TypeRecipe, models.Recipe{
			Name:        args[0],
			Style:       recipeAddFlags.style,
			BatchLiters: recipeAddFlags.batchLiters,
			TargetOG:    recipeAddFlags.targetOG,
			TargetFG:    recipeAddFlags.targetFG,
			IBU:         recipeAddFlags.ibu,
			BoilMinutes: recipeAddFlags.boilMinutes,
			FermentDays: recipeAddFlags.fermentDays,
			Notes:       recipeAddFlags.notes,
		})
		if err != nil {
			output.Error("add recipe: %v", err)
			return err
		}
		output.Success("Added recipe %s (%s)", args[0], shortID(id))
		return nil
	},
}

var recipeEditFlags struct {
	name        string
	style       string
	batchLiters float64
	targetOG    float64
	targetFG    float64
	ibu         float64
	boilMinutes int
	fermentDays int
	notes       string
}

var recipeEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit a recipe",
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
		id, err := resolveID(a, userID, models.TypeRecipe, args[0])
		if err != nil {
			return err
		}
		e, err := a.store.Get(userID, models.TypeRecipe, id)
		if err != nil {
			return err
		}
		var r models.Recipe
		if err := json.Unmarshal(e.Payload, &r); err != nil {
			return err
		}
		if cmd.Flags().Changed("name") {
			r.Name = recipeEditFlags.name
		}
		if cmd.Flags().Changed("style") {
			r.Style = recipeEditFlags.style
		}
		if cmd.Flags().Changed("batch") {
			r.BatchLiters = recipeEditFlags.batchLiters
		}
		if cmd.Flags().Changed("og") {
			r.TargetOG = recipeEditFlags.targetOG
		}
		if cmd.Flags().Changed("fg") {
			r.TargetFG = recipeEditFlags.targetFG
		}
		if cmd.Flags().Changed("ibu") {
			r.IBU = recipeEditFlags.ibu
		}
		if cmd.Flags().Changed("boil") {
			r.BoilMinutes = recipeEditFlags.boilMinutes
		}
		if cmd.Flags().Changed("ferment") {
			r.FermentDays = recipeEditFlags.fermentDays
		}
		if cmd.Flags().Changed("notes") {
			r.Notes = recipeEditFlags.notes
		}
		raw, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if err := updateEntity(a, userID, models.TypeRecipe, id, raw); err != nil {
			output.Error("edit recipe: %v", err)
			return err
		}
		output.Success("Updated recipe %s", shortID(id))
		return nil
	},
}

var recipeListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recipes",
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
		return listEntities(a, userID, models.TypeRecipe, func(raw json.RawMessage) string {
			var r models.Recipe
			json.Unmarshal(raw, &r)
			if r.Style != "" {
				return r.Name + " (" + r.Style + ")"
			}
			return r.Name
		})
	},
}

var recipeShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a recipe",
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
		id, err := resolveID(a, userID, models.TypeRecipe, args[0])
		if err != nil {
			return err
		}
		return showEntity(a, userID, models.TypeRecipe, id)
	},
}

var recipeRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete a recipe",
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
		id, err := resolveID(a, userID, models.TypeRecipe, args[0])
		if err != nil {
			return err
		}
		if err := removeEntity(a, userID, models.TypeRecipe, id); err != nil {
			output.Error("delete recipe: %v", err)
			return err
		}
		output.Success("Deleted recipe %s", shortID(id))
		return nil
	},
}

func init() {
	recipeAddCmd.Flags().StringVar(&recipeAddFlags.style, "style", "", "beer style")
	recipeAddCmd.Flags().Float64Var(&recipeAddFlags.batchLiters, "batch", 0, "batch size in liters")
	recipeAddCmd.Flags().Float64Var(&recipeAddFlags.targetOG, "og", 0, "target original gravity")
	recipeAddCmd.Flags().Float64Var(&recipeAddFlags.targetFG, "fg", 0, "target final gravity")
	recipeAddCmd.Flags().Float64Var(&recipeAddFlags.ibu, "ibu", 0, "bitterness (IBU)")
	recipeAddCmd.Flags().IntVar(&recipeAddFlags.boilMinutes, "boil", 0, "boil length in minutes")
	recipeAddCmd.Flags().IntVar(&recipeAddFlags.fermentDays, "ferment", 0, "fermentation length in days")
	recipeAddCmd.Flags().StringVar(&recipeAddFlags.notes, "notes", "", "free-form notes")

	recipeEditCmd.Flags().StringVar(&recipeEditFlags.name, "name", "", "recipe name")
	recipeEditCmd.Flags().StringVar(&recipeEditFlags.style, "style", "", "beer style")
	recipeEditCmd.Flags().Float64Var(&recipeEditFlags.batchLiters, "batch", 0, "batch size in liters")
	recipeEditCmd.Flags().Float64Var(&recipeEditFlags.targetOG, "og", 0, "target original gravity")
	recipeEditCmd.Flags().Float64Var(&recipeEditFlags.targetFG, "fg", 0, "target final gravity")
	recipeEditCmd.Flags().Float64Var(&recipeEditFlags.ibu, "ibu", 0, "bitterness (IBU)")
	recipeEditCmd.Flags().IntVar(&recipeEditFlags.boilMinutes, "boil", 0, "boil length in minutes")
	recipeEditCmd.Flags().IntVar(&recipeEditFlags.fermentDays, "ferment", 0, "fermentation length in days")
	recipeEditCmd.Flags().StringVar(&recipeEditFlags.notes, "notes", "", "free-form notes")

	recipeCmd.AddCommand(recipeAddCmd)
	recipeCmd.AddCommand(recipeEditCmd)
	recipeCmd.AddCommand(recipeListCmd)
	recipeCmd.AddCommand(recipeShowCmd)
	recipeCmd.AddCommand(recipeRmCmd)
	rootCmd.AddCommand(recipeCmd)
}
