// Package form holds the per-view form controllers. A controller accumulates
// field edits and produces an immutable request payload on submit.
package form

import (
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Option catalogues offered by the recipe form.
var (
	Cuisines = []string{"Italian", "Japanese", "Mexican", "Korean", "Indian", "French", "Thai", "Filipino"}
	Meals    = []string{"Breakfast", "Lunch", "Dinner", "Snack", "Dessert"}
	Diets    = []string{"Vegetarian", "Vegan", "Keto", "Halal", "Gluten-Free", "Dairy-Free"}
	Flavors  = []string{"Sweet", "Savory", "Spicy", "Sour", "Bitter", "Umami"}
)

// Slider ranges for the recipe form.
const (
	MinServings    = 1
	MaxServings    = 12
	MinCookingTime = 5
	MaxCookingTime = 180
	CookingStep    = 5
)

// Edit operations understood by ApplyEdit.
const (
	OpAddIngredient    = "add_ingredient"
	OpRemoveIngredient = "remove_ingredient"
	OpAddEquipment     = "add_equipment"
	OpRemoveEquipment  = "remove_equipment"
	OpToggleDiet       = "toggle_diet"
	OpGenerate         = "generate"
)

// RecipeRequest is the payload sent to the recipe generator.
type RecipeRequest struct {
	Ingredients        []string `json:"ingredients"`
	Cuisine            string   `json:"cuisine"`
	MealType           string   `json:"mealType"`
	DietaryPreferences []string `json:"dietaryPreferences"`
	Servings           int      `json:"servings"`
	FlavorProfile      string   `json:"flavorProfile"`
	Equipment          []string `json:"equipment"`
	CookingTime        int      `json:"cookingTime"`
}

// RecipeForm accumulates edits for the recipe generator.
type RecipeForm struct {
	Ingredients        []string
	Cuisine            string
	MealType           string
	DietaryPreferences []string
	Servings           int
	FlavorProfile      string
	Equipment          []string
	CookingTime        int
}

// NewRecipeForm returns a form with the default servings and cooking time.
func NewRecipeForm() *RecipeForm {
	return &RecipeForm{
		Ingredients:        []string{},
		DietaryPreferences: []string{},
		Equipment:          []string{},
		Servings:           4,
		CookingTime:        30,
	}
}

func (f *RecipeForm) AddIngredient(v string) {
	f.Ingredients = appendTrimmed(f.Ingredients, v)
}

// RemoveIngredient removes the first ingredient equal to v.
func (f *RecipeForm) RemoveIngredient(v string) {
	f.Ingredients = removeValue(f.Ingredients, v)
}

func (f *RecipeForm) RemoveIngredientAt(i int) {
	f.Ingredients = removeIndex(f.Ingredients, i)
}

func (f *RecipeForm) AddEquipment(v string) {
	f.Equipment = appendTrimmed(f.Equipment, v)
}

func (f *RecipeForm) RemoveEquipment(v string) {
	f.Equipment = removeValue(f.Equipment, v)
}

func (f *RecipeForm) RemoveEquipmentAt(i int) {
	f.Equipment = removeIndex(f.Equipment, i)
}

// ToggleDiet adds the preference if absent and removes it otherwise.
func (f *RecipeForm) ToggleDiet(d string) {
	if slices.Contains(f.DietaryPreferences, d) {
		f.DietaryPreferences = slices.DeleteFunc(slices.Clone(f.DietaryPreferences), func(s string) bool { return s == d })
		return
	}
	f.DietaryPreferences = append(f.DietaryPreferences, d)
}

// SetDiets replaces the preference set with selected while keeping the
// insertion order of the ones that stay checked.
func (f *RecipeForm) SetDiets(selected []string) {
	next := make([]string, 0, len(selected))
	for _, d := range f.DietaryPreferences {
		if slices.Contains(selected, d) {
			next = append(next, d)
		}
	}
	for _, d := range selected {
		if d != "" && !slices.Contains(next, d) {
			next = append(next, d)
		}
	}
	f.DietaryPreferences = next
}

// SetServings coerces text to a number. Unparseable text leaves the value as is.
func (f *RecipeForm) SetServings(raw string) {
	f.Servings = coerceInt(raw, f.Servings)
}

// SetCookingTime coerces text to a number of minutes.
func (f *RecipeForm) SetCookingTime(raw string) {
	f.CookingTime = coerceInt(raw, f.CookingTime)
}

// CanSubmit reports whether the generate action is enabled.
func (f *RecipeForm) CanSubmit(loading bool) bool {
	return !loading && len(f.Ingredients) > 0
}

// Payload returns a request detached from the form's slices.
func (f *RecipeForm) Payload() RecipeRequest {
	return RecipeRequest{
		Ingredients:        cloneList(f.Ingredients),
		Cuisine:            f.Cuisine,
		MealType:           f.MealType,
		DietaryPreferences: cloneList(f.DietaryPreferences),
		Servings:           f.Servings,
		FlavorProfile:      f.FlavorProfile,
		Equipment:          cloneList(f.Equipment),
		CookingTime:        f.CookingTime,
	}
}

// ApplyValues copies the scalar inputs and the diet checkboxes from a posted
// form. List fields only change through ApplyEdit.
func (f *RecipeForm) ApplyValues(values url.Values) {
	if _, ok := values["cuisine"]; ok {
		f.Cuisine = strings.TrimSpace(values.Get("cuisine"))
	}
	if _, ok := values["mealType"]; ok {
		f.MealType = strings.TrimSpace(values.Get("mealType"))
	}
	if _, ok := values["flavorProfile"]; ok {
		f.FlavorProfile = strings.TrimSpace(values.Get("flavorProfile"))
	}
	if _, ok := values["servings"]; ok {
		f.SetServings(values.Get("servings"))
	}
	if _, ok := values["cookingTime"]; ok {
		f.SetCookingTime(values.Get("cookingTime"))
	}
	if _, ok := values["diets_present"]; ok {
		f.SetDiets(values["dietaryPreferences"])
	}
}

// ApplyEdit performs a list edit named by op. It reports whether op was an
// edit operation.
func (f *RecipeForm) ApplyEdit(op string, values url.Values) bool {
	switch op {
	case OpAddIngredient:
		f.AddIngredient(values.Get("ingredient_input"))
	case OpRemoveIngredient:
		if i, ok := index(values); ok {
			f.RemoveIngredientAt(i)
		} else {
			f.RemoveIngredient(values.Get("value"))
		}
	case OpAddEquipment:
		f.AddEquipment(values.Get("equipment_input"))
	case OpRemoveEquipment:
		if i, ok := index(values); ok {
			f.RemoveEquipmentAt(i)
		} else {
			f.RemoveEquipment(values.Get("value"))
		}
	case OpToggleDiet:
		f.ToggleDiet(values.Get("value"))
	default:
		return false
	}
	return true
}

func appendTrimmed(list []string, v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return list
	}
	return append(list, v)
}

func removeValue(list []string, v string) []string {
	i := slices.Index(list, v)
	if i < 0 {
		return list
	}
	return removeIndex(list, i)
}

func removeIndex(list []string, i int) []string {
	if i < 0 || i >= len(list) {
		return list
	}
	return slices.Delete(slices.Clone(list), i, i+1)
}

func cloneList(list []string) []string {
	if list == nil {
		return []string{}
	}
	return slices.Clone(list)
}

func index(values url.Values) (int, bool) {
	raw := values.Get("index")
	if raw == "" {
		return 0, false
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return i, true
}

func coerceInt(raw string, prev int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return prev
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if fl, err := strconv.ParseFloat(raw, 64); err == nil && finite(fl) {
		return int(fl)
	}
	return prev
}

func finite(fl float64) bool {
	return !math.IsNaN(fl) && !math.IsInf(fl, 0)
}
