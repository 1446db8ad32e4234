package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"slices"

	"github.com/tjfontaine/mealgen/internal/form"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page carries the fields every page template uses.
type Page struct {
	Title   string
	Active  string
	Refresh bool
	Notice  string
}

// RecipePage is the data for the recipe view.
type RecipePage struct {
	Page
	Form      *form.RecipeForm
	CanSubmit bool
	Loading   bool
	Failure   string
	View      *RecipeView
}

func (p RecipePage) Cuisines() []string { return form.Cuisines }
func (p RecipePage) Meals() []string    { return form.Meals }
func (p RecipePage) Diets() []string    { return form.Diets }
func (p RecipePage) Flavors() []string  { return form.Flavors }

// HasDiet reports whether the diet checkbox is checked.
func (p RecipePage) HasDiet(d string) bool {
	return slices.Contains(p.Form.DietaryPreferences, d)
}

// GroceryPage is the data for the grocery view.
type GroceryPage struct {
	Page
	Form      *form.GroceryForm
	CanSubmit bool
	Loading   bool
	Failure   string
	View      *GroceryView
}

var funcs = template.FuncMap{
	"minServings":    func() int { return form.MinServings },
	"maxServings":    func() int { return form.MaxServings },
	"minCookingTime": func() int { return form.MinCookingTime },
	"maxCookingTime": func() int { return form.MaxCookingTime },
	"cookingStep":    func() int { return form.CookingStep },
}

// Pages renders the embedded page templates.
type Pages struct {
	templates map[string]*template.Template
}

// NewPages parses every page together with the shared layout.
func NewPages() (*Pages, error) {
	p := &Pages{templates: make(map[string]*template.Template)}
	for _, name := range []string{"recipe", "grocery"} {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		p.templates[name] = t
	}
	return p, nil
}

// Render executes page name into w. Output is buffered so a template error
// never leaves a half-written page.
func (p *Pages) Render(w io.Writer, name string, data any) error {
	t, ok := p.templates[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}
