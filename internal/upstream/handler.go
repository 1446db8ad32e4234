// Package upstream is a local stand-in for the hosted recipe and grocery
// generators. It replies with the same Lambda-style envelope so the web app
// can run against it unchanged.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/mealgen/internal/server"
)

const maxRequestBytes = 1 << 20

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "OPTIONS,POST,GET",
	"Access-Control-Allow-Headers": "Content-Type,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token",
	"Content-Type":                 "application/json",
}

// Generation settings per generator.
var (
	recipeCompletion  = Completion{Temperature: 0.7, MaxTokens: 1000}
	groceryCompletion = Completion{Temperature: 0.2, MaxTokens: 800}
)

// LambdaResult is the proxy-integration envelope. Body holds JSON text.
type LambdaResult struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// Handler serves the generator endpoints.
type Handler struct {
	model  Completer
	budget *PromptBudget
	logger *slog.Logger
}

// NewHandler wires the model client and prompt budget. budget may be nil.
func NewHandler(model Completer, budget *PromptBudget, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{model: model, budget: budget, logger: logger}
}

// Routes mounts the endpoints under /dev like the hosted stage.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/dev", func(r chi.Router) {
		r.Post("/ask", h.handleRecipe)
		r.Post("/grocery", h.handleGrocery)
		r.Options("/ask", h.handlePreflight)
		r.Options("/grocery", h.handlePreflight)
	})
	return r
}

func (h *Handler) handlePreflight(w http.ResponseWriter, r *http.Request) {
	writeLambda(w, http.StatusOK, map[string]any{})
}

// errBadJSON marks a request body that is not JSON.
var errBadJSON = errors.New("Invalid JSON format")

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errBadJSON
	}
	return nil
}

func (h *Handler) handleRecipe(w http.ResponseWriter, r *http.Request) {
	var in RecipeInput
	if err := decodeBody(w, r, &in); err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}

	prompt := ""
	switch {
	case in.Prompt != nil:
		prompt = *in.Prompt
		in = RecipeInput{Ingredients: []string{}}
	case len(in.Ingredients) == 0:
		h.fail(w, r, http.StatusBadRequest, errors.New("Missing required field: ingredients or prompt"))
		return
	default:
		prompt = BuildRecipePrompt(in)
	}

	text, status, err := h.complete(r.Context(), prompt, recipeCompletion)
	if err != nil {
		h.fail(w, r, status, err)
		return
	}

	recipe, err := ParseRecipe(text)
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, fmt.Errorf("Model response is not valid JSON: %v", err))
		return
	}

	var cuisine any
	if in.Cuisine != "" {
		cuisine = in.Cuisine
	}
	writeLambda(w, http.StatusOK, map[string]any{
		"response": recipe,
		"metadata": map[string]any{
			"ingredients": in.Ingredients,
			"cuisine":     cuisine,
			"diet":        in.DietaryPreferences,
		},
	})
}

func (h *Handler) handleGrocery(w http.ResponseWriter, r *http.Request) {
	var in GroceryInput
	if err := decodeBody(w, r, &in); err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}
	if in.MealName == "" {
		h.fail(w, r, http.StatusBadRequest, errors.New("Missing required field: meal_name"))
		return
	}

	text, status, err := h.complete(r.Context(), BuildGroceryPrompt(in), groceryCompletion)
	if err != nil {
		h.fail(w, r, status, err)
		return
	}

	list, err := ParseGroceryList(text)
	if err != nil {
		h.fail(w, r, http.StatusBadGateway, fmt.Errorf("Model response is not valid JSON: %v", err))
		return
	}

	writeLambda(w, http.StatusOK, map[string]any{
		"response": list,
		"metadata": map[string]any{
			"meal_name":    in.MealName,
			"servings":     in.Servings,
			"budget_limit": in.BudgetLimit,
			"region":       in.Region,
		},
	})
}

// complete checks the prompt budget and calls the model. The status is the
// one to reply with on error.
func (h *Handler) complete(ctx context.Context, prompt string, settings Completion) (string, int, error) {
	if h.budget != nil {
		n, err := h.budget.Check(prompt)
		server.AddLogField(ctx, "prompt_tokens", fmt.Sprint(n))
		if err != nil {
			return "", http.StatusBadRequest, err
		}
	}

	settings.Prompt = prompt
	text, err := h.model.Complete(ctx, settings)
	if err != nil {
		return "", http.StatusInternalServerError, err
	}
	return text, http.StatusOK, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	server.AddError(r.Context(), err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("generator request failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	writeLambda(w, status, map[string]string{"error": err.Error()})
}

// writeLambda wraps body in a LambdaResult. The HTTP status mirrors statusCode.
func writeLambda(w http.ResponseWriter, status int, body any) {
	encoded, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		encoded = []byte(`{"error":"failed to encode response"}`)
	}

	for k, v := range corsHeaders {
		w.Header().Set(k, v)
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(LambdaResult{
		StatusCode: status,
		Headers:    corsHeaders,
		Body:       string(encoded),
	})
}
