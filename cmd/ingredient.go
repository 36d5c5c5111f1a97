package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/marcus/brewlog/internal/models"
	"github.com/marcus/brewlog/internal/output"
	"github.com/spf13/cobra"
)

var ingredientCmd = &cobra.Command{
	Use:     "ingredient",
	Aliases: []string{"ing"},
	Short:   "Manage ingredients",
	GroupID: "core",
}

var ingredientAddFlags struct {
	kind      string
	amount    float64
	unit      string
	alphaAcid float64
}

var ingredientAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add an ingredient",
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

		id, err := createEntity(a, userID, models.TypeIngredient, models.Ingredient{
			Name:      args[0],
			Kind:      ingredientAddFlags.kind,
			Amount:    ingredientAddFlags.amount,
			Unit:      ingredientAddFlags.unit,
			AlphaAcid: ingredientAddFlags.alphaAcid,
		})
		if err != nil {
			output.Error("add ingredient: %v", err)
			return err
		}
		output.Success("Added ingredient %s (%s)", args[0], shortID(id))
		return nil
	},
}

var ingredientListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List ingredients",
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
		return listEntities(a, userID, models.TypeIngredient, func(raw json.RawMessage) string {
			var i models.Ingredient
			json.Unmarshal(raw, &i)
			if i.Amount > 0 {
				return fmt.Sprintf("%s (%g %s)", i.Name, i.Amount, i.Unit)
			}
			return i.Name
		})
	},
}

var ingredientRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete an ingredient",
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
		id, err := resolveID(a, userID, models.TypeIngredient, args[0])
		if err != nil {
			return err
		}
		if err := removeEntity(a, userID, models.TypeIngredient, id); err != nil {
			output.Error("delete ingredient: %v", err)
			return err
		}
		output.Success("Deleted ingredient %s", shortID(id))
		return nil
	},
}

func init() {
	ingredientAddCmd.Flags().StringVar(&ingredientAddFlags.kind, "kind", "", "malt, hop, yeast, or adjunct")
	ingredientAddCmd.Flags().Float64Var(&ingredientAddFlags.amount, "amount", 0, "amount on hand")
	ingredientAddCmd.Flags().StringVar(&ingredientAddFlags.unit, "unit", "", "unit for amount (g, kg, oz)")
	ingredientAddCmd.Flags().Float64Var(&ingredientAddFlags.alphaAcid, "alpha", 0, "alpha acid percentage (hops)")

	ingredientCmd.AddCommand(ingredientAddCmd)
	ingredientCmd.AddCommand(ingredientListCmd)
	ingredientCmd.AddCommand(ingredientRmCmd)
	rootCmd.AddCommand(ingredientCmd)
}
