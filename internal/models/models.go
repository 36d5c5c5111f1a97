package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntityType identifies a kind of syncable domain entity.
type EntityType string

const (
	TypeRecipe           EntityType = "recipe"
	TypeBrewSession      EntityType = "brew_session"
	TypeIngredient       EntityType = "ingredient"
	TypeEquipmentProfile EntityType = "equipment_profile"
)

// EntityTypes lists every syncable entity type in a stable order.
// The sync coordinator pulls remote state in this order.
var EntityTypes = []EntityType{
	TypeRecipe,
	TypeBrewSession,
	TypeIngredient,
	TypeEquipmentProfile,
}

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case TypeRecipe, TypeBrewSession, TypeIngredient, TypeEquipmentProfile:
		return true
	}
	return false
}

// Recipe is the payload schema for recipe entities.
type Recipe struct {
	Name          string   `json:"name"`
	Style         string   `json:"style,omitempty"`
	BatchLiters   float64  `json:"batch_liters,omitempty"`
	TargetOG      float64  `json:"target_og,omitempty"`
	TargetFG      float64  `json:"target_fg,omitempty"`
	IBU           float64  `json:"ibu,omitempty"`
	Notes         string   `json:"notes,omitempty"`
	IngredientIDs []string `json:"ingredient_ids,omitempty"`
	BoilMinutes   int      `json:"boil_minutes,omitempty"`
	FermentDays   int      `json:"ferment_days,omitempty"`
}

// BrewSession is the payload schema for brew session entities.
type BrewSession struct {
	RecipeID      string     `json:"recipe_id"`
	Name          string     `json:"name"`
	BrewedAt      *time.Time `json:"brewed_at,omitempty"`
	MeasuredOG    float64    `json:"measured_og,omitempty"`
	MeasuredFG    float64    `json:"measured_fg,omitempty"`
	VolumeLiters  float64    `json:"volume_liters,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	PhotoExportID string     `json:"photo_export_id,omitempty"`
}

// Ingredient is the payload schema for ingredient entities.
type Ingredient struct {
	Name      string  `json:"name"`
	Kind      string  `json:"kind,omitempty"` // malt, hop, yeast, adjunct
	Amount    float64 `json:"amount,omitempty"`
	Unit      string  `json:"unit,omitempty"`
	AlphaAcid float64 `json:"alpha_acid,omitempty"`
}

// EquipmentProfile is the payload schema for equipment profile entities.
type EquipmentProfile struct {
	Name           string  `json:"name"`
	KettleLiters   float64 `json:"kettle_liters,omitempty"`
	BoilOffRate    float64 `json:"boil_off_rate,omitempty"`
	MashEfficiency float64 `json:"mash_efficiency,omitempty"`
}

// gravity bounds for sanity checks on OG/FG readings
const (
	gravityMin = 0.9
	gravityMax = 1.2
)

func checkGravity(field string, v float64) error {
	if v == 0 {
		return nil // unset
	}
	if v < gravityMin || v > gravityMax {
		return fmt.Errorf("%s %.3f outside [%.1f, %.1f]", field, v, gravityMin, gravityMax)
	}
	return nil
}

// ValidatePayload decodes raw as the schema for entityType and applies
// per-kind range checks. It is the single validation point for entity
// payloads: a payload that passes here is safe to store and transmit.
// Type mismatches (e.g. a string where a number belongs) fail at decode.
func ValidatePayload(entityType EntityType, raw json.RawMessage) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty payload")
	}
	switch entityType {
	case TypeRecipe:
		var r Recipe
		if err := json.Unmarshal(raw, &r); err != nil {
			return fmt.Errorf("decode recipe: %w", err)
		}
		if r.Name == "" {
			return fmt.Errorf("recipe name required")
		}
		if r.BatchLiters < 0 {
			return fmt.Errorf("batch_liters must be non-negative")
		}
		if r.BoilMinutes < 0 || r.FermentDays < 0 {
			return fmt.Errorf("durations must be non-negative")
		}
		if err := checkGravity("target_og", r.TargetOG); err != nil {
			return err
		}
		return checkGravity("target_fg", r.TargetFG)
	case TypeBrewSession:
		var b BrewSession
		if err := json.Unmarshal(raw, &b); err != nil {
			return fmt.Errorf("decode brew session: %w", err)
		}
		if b.Name == "" {
			return fmt.Errorf("brew session name required")
		}
		if b.VolumeLiters < 0 {
			return fmt.Errorf("volume_liters must be non-negative")
		}
		if err := checkGravity("measured_og", b.MeasuredOG); err != nil {
			return err
		}
		return checkGravity("measured_fg", b.MeasuredFG)
	case TypeIngredient:
		var i Ingredient
		if err := json.Unmarshal(raw, &i); err != nil {
			return fmt.Errorf("decode ingredient: %w", err)
		}
		if i.Name == "" {
			return fmt.Errorf("ingredient name required")
		}
		if i.Amount < 0 {
			return fmt.Errorf("amount must be non-negative")
		}
		return nil
	case TypeEquipmentProfile:
		var e EquipmentProfile
		if err := json.Unmarshal(raw, &e); err != nil {
			return fmt.Errorf("decode equipment profile: %w", err)
		}
		if e.Name == "" {
			return fmt.Errorf("equipment profile name required")
		}
		return nil
	default:
		return fmt.Errorf("unknown entity type: %s", entityType)
	}
}

// User is the profile the remote API returns on session establishment.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}
