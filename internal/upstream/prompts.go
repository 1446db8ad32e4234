package upstream

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const defaultCuisine = "Filipino"

// Grocery defaults applied when the request leaves a field out.
const (
	defaultGroceryServings = 1
	defaultGroceryBudget   = 20.0
	defaultGroceryRegion   = "US"
)

// RecipeInput is the recipe request body. Prompt is the legacy free-text form.
type RecipeInput struct {
	Prompt             *string  `json:"prompt,omitempty"`
	Ingredients        []string `json:"ingredients"`
	Cuisine            string   `json:"cuisine"`
	MealType           string   `json:"mealType"`
	DietaryPreferences []string `json:"dietaryPreferences"`
	Servings           int      `json:"servings"`
	FlavorProfile      string   `json:"flavorProfile"`
	Equipment          []string `json:"equipment"`
	CookingTime        int      `json:"cookingTime"`
}

// GroceryInput is the grocery request body. Optional numbers are pointers so
// a missing field is told apart from zero.
type GroceryInput struct {
	MealName    string   `json:"meal_name"`
	Servings    *int     `json:"servings"`
	BudgetLimit *float64 `json:"budget_limit"`
	Region      *string  `json:"region"`
}

const recipeFormat = `

Please respond in the following JSON format:
{
  "name": "<Recipe name>",
  "servings": "<number of servings>",
  "cooking_time": "<cooking time in minutes>",
  "recipe": ["<ingredient 1>", "<ingredient 2>", ...],
  "steps": ["<step 1>", "<step 2>", ...],
  "equipment": ["<equipment 1>", "<equipment 2>", ...]
}`

// BuildRecipePrompt describes the requested dish and the JSON shape the
// model must answer with.
func BuildRecipePrompt(in RecipeInput) string {
	cuisine := in.Cuisine
	if cuisine == "" {
		cuisine = defaultCuisine
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Create a %s recipe using %s", cuisine, strings.Join(in.Ingredients, ", "))
	if in.MealType != "" {
		fmt.Fprintf(&b, " for %s", in.MealType)
	}
	if in.Servings > 0 {
		fmt.Fprintf(&b, " that serves %d people", in.Servings)
	}
	if in.CookingTime > 0 {
		fmt.Fprintf(&b, " with a cooking time of about %d minutes", in.CookingTime)
	}
	if in.FlavorProfile != "" {
		fmt.Fprintf(&b, " with a %s flavor profile", strings.ToLower(in.FlavorProfile))
	}
	if len(in.DietaryPreferences) > 0 {
		fmt.Fprintf(&b, " that is %s", strings.Join(in.DietaryPreferences, ", "))
	}
	if len(in.Equipment) > 0 {
		fmt.Fprintf(&b, " using the following equipment: %s", strings.Join(in.Equipment, ", "))
	}
	b.WriteString(".")
	b.WriteString(recipeFormat)
	return b.String()
}

// resolved returns the grocery input with defaults filled in.
func (in GroceryInput) resolved() (servings int, budget float64, region string) {
	servings, budget, region = defaultGroceryServings, defaultGroceryBudget, defaultGroceryRegion
	if in.Servings != nil && *in.Servings > 0 {
		servings = *in.Servings
	}
	if in.BudgetLimit != nil && *in.BudgetLimit > 0 {
		budget = *in.BudgetLimit
	}
	if in.Region != nil && strings.TrimSpace(*in.Region) != "" {
		region = strings.TrimSpace(*in.Region)
	}
	return servings, budget, region
}

// BuildGroceryPrompt asks for a budgeted shopping list as bare JSON.
func BuildGroceryPrompt(in GroceryInput) string {
	servings, budget, region := in.resolved()

	return fmt.Sprintf(`Generate a grocery list for the meal %q.
It should serve %d person(s).
The total budget should not exceed $%.2f.
Region: %s.

Respond only with a valid JSON in this format:

{
"meal_name": "<meal name>",
"servings": <number>,
"estimated_cost": <total estimated cost>,
"ingredients": ["<ingredient 1>", "<ingredient 2>", ...]
}

Rules:
- Be realistic with prices and portion sizes.
- Ingredients should reflect regional availability.
- Estimate cost reasonably and stay under the specified budget.
- Never include any markdown, explanation, or extra text.`, in.MealName, servings, budget, region)
}

var (
	fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	bareJSON   = regexp.MustCompile(`(?s)^\s*(\{.*\})\s*$`)
)

// ExtractJSONBlock returns the JSON object in model output, whether fenced
// in a code block or bare. Other text is returned trimmed.
func ExtractJSONBlock(text string) string {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := bareJSON.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return strings.TrimSpace(text)
}

// GroceryList is the normalized grocery reply.
type GroceryList struct {
	MealName      string   `json:"meal_name"`
	Servings      any      `json:"servings"`
	EstimatedCost any      `json:"estimated_cost"`
	Ingredients   []string `json:"ingredients"`
}

// ParseGroceryList decodes model output into a GroceryList, keeping only the
// known fields.
func ParseGroceryList(text string) (*GroceryList, error) {
	var raw struct {
		MealName      string          `json:"meal_name"`
		Servings      json.RawMessage `json:"servings"`
		EstimatedCost json.RawMessage `json:"estimated_cost"`
		Ingredients   []any           `json:"ingredients"`
	}
	if err := json.Unmarshal([]byte(ExtractJSONBlock(text)), &raw); err != nil {
		return nil, err
	}

	list := &GroceryList{
		MealName:      raw.MealName,
		Servings:      rawOr(raw.Servings, 0),
		EstimatedCost: rawOr(raw.EstimatedCost, 0.0),
		Ingredients:   []string{},
	}
	for _, item := range raw.Ingredients {
		switch v := item.(type) {
		case string:
			list.Ingredients = append(list.Ingredients, v)
		case nil:
		default:
			list.Ingredients = append(list.Ingredients, fmt.Sprint(v))
		}
	}
	return list, nil
}

// ParseRecipe decodes model output into a recipe object.
func ParseRecipe(text string) (map[string]any, error) {
	var recipe map[string]any
	if err := json.Unmarshal([]byte(ExtractJSONBlock(text)), &recipe); err != nil {
		return nil, err
	}
	if recipe == nil {
		return nil, fmt.Errorf("model response is not a JSON object")
	}
	return recipe, nil
}

func rawOr(raw json.RawMessage, def any) any {
	if len(raw) == 0 || string(raw) == "null" {
		return def
	}
	return raw
}
