package form

import (
	"net/url"
	"strconv"
	"strings"
)

// GroceryRequest is the payload sent to the grocery generator.
type GroceryRequest struct {
	MealName    string  `json:"meal_name"`
	Servings    int     `json:"servings"`
	BudgetLimit float64 `json:"budget_limit"`
	Region      string  `json:"region"`
}

// GroceryForm accumulates edits for the grocery generator.
type GroceryForm struct {
	MealName    string
	Servings    int
	BudgetLimit float64
	Region      string
}

func NewGroceryForm() *GroceryForm {
	return &GroceryForm{Servings: 1}
}

// ApplyValues copies posted inputs, coercing the numeric ones.
func (f *GroceryForm) ApplyValues(values url.Values) {
	if _, ok := values["meal_name"]; ok {
		f.MealName = strings.TrimSpace(values.Get("meal_name"))
	}
	if _, ok := values["region"]; ok {
		f.Region = strings.TrimSpace(values.Get("region"))
	}
	if _, ok := values["servings"]; ok {
		f.Servings = coerceInt(values.Get("servings"), f.Servings)
	}
	if _, ok := values["budget_limit"]; ok {
		f.BudgetLimit = coerceFloat(values.Get("budget_limit"), f.BudgetLimit)
	}
}

// CanSubmit reports whether the generate action is enabled. Required
// inputs are enforced by the widgets.
func (f *GroceryForm) CanSubmit(loading bool) bool {
	return !loading
}

func (f *GroceryForm) Payload() GroceryRequest {
	return GroceryRequest{
		MealName:    f.MealName,
		Servings:    f.Servings,
		BudgetLimit: f.BudgetLimit,
		Region:      f.Region,
	}
}

func coerceFloat(raw string, prev float64) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return prev
	}
	if fl, err := strconv.ParseFloat(raw, 64); err == nil && finite(fl) {
		return fl
	}
	return prev
}
