package cmd

import (
	"encoding/json"

	"github.com/marcus/brewlog/internal/models"
	"github.com/marcus/brewlog/internal/output"
	"github.com/spf13/cobra"
)

var equipmentCmd = &cobra.Command{
	Use:     "equipment",
	Aliases: []string{"eq"},
	Short:   "Manage equipment profiles",
	GroupID: "core",
}

var equipmentAddFlags struct {
	kettleLiters   float64
	boilOffRate    float64
	mashEfficiency float64
}

var equipmentAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add an equipment profile",
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

		id, err := createEntity(a, userID, models.TypeEquipmentProfile, models.EquipmentProfile{
			Name:           args[0],
			KettleLiters:   equipmentAddFlags.kettleLiters,
			BoilOffRate:    equipmentAddFlags.boilOffRate,
			MashEfficiency: equipmentAddFlags.mashEfficiency,
		})
		if err != nil {
			output.Error("add equipment profile: %v", err)
			return err
		}
		output.Success("Added equipment profile %s (%s)", args[0], shortID(id))
		return nil
	},
}

var equipmentListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List equipment profiles",
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
		return listEntities(a, userID, models.TypeEquipmentProfile, func(raw json.RawMessage) string {
			var e models.EquipmentProfile
			json.Unmarshal(raw, &e)
			return e.Name
		})
	},
}

var equipmentRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Delete an equipment profile",
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
		id, err := resolveID(a, userID, models.TypeEquipmentProfile, args[0])
		if err != nil {
			return err
		}
		if err := removeEntity(a, userID, models.TypeEquipmentProfile, id); err != nil {
			output.Error("delete equipment profile: %v", err)
			return err
		}
		output.Success("Deleted equipment profile %s", shortID(id))
		return nil
	},
}

func init() {
	equipmentAddCmd.Flags().Float64Var(&equipmentAddFlags.kettleLiters, "kettle", 0, "kettle size in liters")
	equipmentAddCmd.Flags().Float64Var(&equipmentAddFlags.boilOffRate, "boiloff", 0, "boil-off rate in liters/hour")
	equipmentAddCmd.Flags().Float64Var(&equipmentAddFlags.mashEfficiency, "efficiency", 0, "mash efficiency percentage")

	equipmentCmd.AddCommand(equipmentAddCmd)
	equipmentCmd.AddCommand(equipmentListCmd)
	equipmentCmd.AddCommand(equipmentRmCmd)
	rootCmd.AddCommand(equipmentCmd)
}
