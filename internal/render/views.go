// Package render maps generator payloads into display markup.
package render

import (
	"encoding/json"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"github.com/tjfontaine/mealgen/internal/envelope"
)

// RecipeView is the read-only rendering of a recipe response. Empty fields
// are omitted by the template.
type RecipeView struct {
	Title                string
	Servings             string
	CookingTime          string
	Cuisine              string
	RequestedIngredients []string
	Diet                 []string
	Ingredients          []template.HTML
	Steps                []template.HTML
	Equipment            []template.HTML
}

// HasMetadata reports whether the metadata line has anything to show.
func (v RecipeView) HasMetadata() bool {
	return v.Cuisine != "" || len(v.RequestedIngredients) > 0 || len(v.Diet) > 0
}

// BuildRecipeView maps a recipe payload into a RecipeView.
func BuildRecipeView(p *envelope.Payload) *RecipeView {
	if p == nil {
		return nil
	}
	r := p.Response

	cooking := scalar(r["cooking_time"])
	if cooking == "" {
		cooking = scalar(r["cookingTime"])
	}

	return &RecipeView{
		Title:                scalar(r["name"]),
		Servings:             nonZero(scalar(r["servings"])),
		CookingTime:          minutes(nonZero(cooking)),
		Cuisine:              scalar(p.Metadata["cuisine"]),
		RequestedIngredients: list(p.Metadata["ingredients"]),
		Diet:                 list(p.Metadata["diet"]),
		Ingredients:          markupList(r["recipe"]),
		Steps:                markupList(r["steps"]),
		Equipment:            markupList(r["equipment"]),
	}
}

// GroceryView is the read-only rendering of a grocery response.
type GroceryView struct {
	Title         string
	Servings      string
	EstimatedCost string
	Region        string
	BudgetLimit   string
	Ingredients   []template.HTML
}

func (v GroceryView) HasMetadata() bool {
	return v.Region != "" || v.BudgetLimit != ""
}

// BuildGroceryView maps a grocery payload into a GroceryView.
func BuildGroceryView(p *envelope.Payload) *GroceryView {
	if p == nil {
		return nil
	}
	r := p.Response

	return &GroceryView{
		Title:         scalar(r["meal_name"]),
		Servings:      nonZero(scalar(r["servings"])),
		EstimatedCost: money(r["estimated_cost"]),
		Region:        scalar(p.Metadata["region"]),
		BudgetLimit:   money(p.Metadata["budget_limit"]),
		Ingredients:   markupList(r["ingredients"]),
	}
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func list(v any) []string {
	var out []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s := scalar(item); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, item := range t {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
	case string:
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func markupList(v any) []template.HTML {
	items := list(v)
	if len(items) == 0 {
		return nil
	}
	out := make([]template.HTML, 0, len(items))
	for _, item := range items {
		if h := inlineHTML(item); h != "" {
			out = append(out, h)
		}
	}
	return out
}

func nonZero(s string) string {
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == 0 {
		return ""
	}
	return s
}

// minutes appends the unit when the value is a bare number.
func minutes(s string) string {
	if s == "" {
		return ""
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return s + " minutes"
	}
	return s
}

// money formats a positive numeric amount with two decimals. Zero and
// missing amounts are omitted.
func money(v any) string {
	s := scalar(v)
	if s == "" {
		return ""
	}
	f, err := strconv.ParseFloat(strings.TrimPrefix(s, "$"), 64)
	if err != nil {
		return s
	}
	if f <= 0 {
		return ""
	}
	return "$" + strconv.FormatFloat(f, 'f', 2, 64)
}
