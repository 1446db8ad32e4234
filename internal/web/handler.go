// Package web serves the recipe and grocery views.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tjfontaine/mealgen/internal/config"
	"github.com/tjfontaine/mealgen/internal/form"
	"github.com/tjfontaine/mealgen/internal/render"
	"github.com/tjfontaine/mealgen/internal/server"
	"github.com/tjfontaine/mealgen/internal/submission"
)

// Generator names.
const (
	GeneratorRecipe  = "recipe"
	GeneratorGrocery = "grocery"
)

const (
	recipeFailure  = "Failed to generate recipe"
	groceryFailure = "Failed to generate grocery list"
	inFlightNotice = "A request is already in progress. Please wait for it to finish."
)

// Options configures a Handler.
type Options struct {
	Sender submission.Sender
	// Recorder receives submission history. Nil disables recording.
	Recorder submission.Recorder
	// Generators returns the live generator settings.
	Generators func() config.GeneratorsConfig
	SessionTTL time.Duration
	Logger     *slog.Logger
}

// Handler serves the generator views.
type Handler struct {
	opts     Options
	logger   *slog.Logger
	pages    *render.Pages
	sessions *Sessions

	inflight sync.WaitGroup
	active   atomic.Int64
}

// NewHandler parses the page templates and sets up the session table.
func NewHandler(opts Options) (*Handler, error) {
	if opts.Sender == nil {
		return nil, errors.New("web: sender is required")
	}
	if opts.Generators == nil {
		return nil, errors.New("web: generator settings are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pages, err := render.NewPages()
	if err != nil {
		return nil, err
	}

	h := &Handler{
		opts:   opts,
		logger: logger,
		pages:  pages,
	}
	h.sessions = NewSessions(opts.SessionTTL, h.newSession, logger)
	return h, nil
}

// Sessions exposes the session table for pruning.
func (h *Handler) Sessions() *Sessions { return h.sessions }

// InFlight reports how many dispatched submissions have not settled.
func (h *Handler) InFlight() int64 { return h.active.Load() }

// Wait blocks until every dispatched submission has settled.
func (h *Handler) Wait() { h.inflight.Wait() }

// Routes returns the view router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/recipe", http.StatusFound)
	})
	r.Get("/healthz", h.handleHealth)

	r.Get("/recipe", h.handleRecipePage)
	r.Post("/recipe", h.handleRecipePost)
	r.Post("/recipe/reset", h.handleReset(GeneratorRecipe))

	r.Get("/grocery", h.handleGroceryPage)
	r.Post("/grocery", h.handleGroceryPost)
	r.Post("/grocery/reset", h.handleReset(GeneratorGrocery))

	r.Get("/api/{generator}/state", h.handleState)

	return r
}

func (h *Handler) newSession(id string) *Session {
	gens := h.opts.Generators()
	historyID := uuid.New().String()

	build := func(name, failure string, endpoint func(config.GeneratorsConfig) string) *submission.Orchestrator {
		opts := []submission.Option{
			submission.WithLogger(h.logger.With(slog.String("history_id", historyID))),
		}
		if h.opts.Recorder != nil {
			opts = append(opts, submission.WithRecorder(h.opts.Recorder))
		}
		return submission.New(submission.Config{
			Generator:      name,
			Endpoint:       func() string { return endpoint(h.opts.Generators()) },
			Timeout:        gens.Timeout,
			FailureMessage: failure,
			SessionID:      historyID,
		}, h.opts.Sender, opts...)
	}

	return &Session{
		ID:        id,
		HistoryID: historyID,
		recipe:    form.NewRecipeForm(),
		grocery:   form.NewGroceryForm(),
		recipeRun: build(GeneratorRecipe, recipeFailure, func(g config.GeneratorsConfig) string {
			return g.Recipe.Endpoint
		}),
		groceryRun: build(GeneratorGrocery, groceryFailure, func(g config.GeneratorsConfig) string {
			return g.Grocery.Endpoint
		}),
	}
}

func (h *Handler) handleRecipePage(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Get(w, r)
	state := sess.recipeRun.State()

	page := render.RecipePage{
		Page:    render.Page{Title: "Recipe Generator", Active: GeneratorRecipe, Refresh: state.IsLoading()},
		Loading: state.IsLoading(),
	}
	applyState(state, &page.Failure, func() { page.View = render.BuildRecipeView(state.Content) })

	var buf bytes.Buffer
	sess.mu.Lock()
	page.Notice = sess.takeNotice(GeneratorRecipe)
	page.Form = sess.recipe
	page.CanSubmit = sess.recipe.CanSubmit(state.IsLoading())
	err := h.pages.Render(&buf, GeneratorRecipe, page)
	sess.mu.Unlock()

	h.writePage(w, r, &buf, err)
}

func (h *Handler) handleGroceryPage(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Get(w, r)
	state := sess.groceryRun.State()

	page := render.GroceryPage{
		Page:    render.Page{Title: "Grocery List", Active: GeneratorGrocery, Refresh: state.IsLoading()},
		Loading: state.IsLoading(),
	}
	applyState(state, &page.Failure, func() { page.View = render.BuildGroceryView(state.Content) })

	var buf bytes.Buffer
	sess.mu.Lock()
	page.Notice = sess.takeNotice(GeneratorGrocery)
	page.Form = sess.grocery
	page.CanSubmit = sess.grocery.CanSubmit(state.IsLoading())
	err := h.pages.Render(&buf, GeneratorGrocery, page)
	sess.mu.Unlock()

	h.writePage(w, r, &buf, err)
}

func applyState(state submission.DisplayState, failure *string, success func()) {
	switch state.Phase {
	case submission.PhaseFailure:
		*failure = state.Message
	case submission.PhaseSuccess:
		success()
	}
}

func (h *Handler) writePage(w http.ResponseWriter, r *http.Request, buf *bytes.Buffer, err error) {
	if err != nil {
		server.AddError(r.Context(), err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	buf.WriteTo(w)
}

func (h *Handler) handleRecipePost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		server.AddError(r.Context(), err)
		http.Error(w, "invalid form submission", http.StatusBadRequest)
		return
	}

	sess := h.sessions.Get(w, r)
	op := r.Form.Get("op")
	server.AddLogField(r.Context(), "op", op)

	sess.mu.Lock()
	sess.recipe.ApplyValues(r.PostForm)
	edited := sess.recipe.ApplyEdit(op, r.Form)
	var payload form.RecipeRequest
	submit := !edited && op == form.OpGenerate && sess.recipe.CanSubmit(false)
	if submit {
		payload = sess.recipe.Payload()
	}
	sess.mu.Unlock()

	if submit {
		h.dispatch(r, sess, GeneratorRecipe, payload)
	}
	http.Redirect(w, r, "/recipe", http.StatusSeeOther)
}

func (h *Handler) handleGroceryPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		server.AddError(r.Context(), err)
		http.Error(w, "invalid form submission", http.StatusBadRequest)
		return
	}

	sess := h.sessions.Get(w, r)
	op := r.Form.Get("op")
	server.AddLogField(r.Context(), "op", op)

	sess.mu.Lock()
	sess.grocery.ApplyValues(r.PostForm)
	var payload form.GroceryRequest
	submit := op == form.OpGenerate && sess.grocery.CanSubmit(false)
	if submit {
		payload = sess.grocery.Payload()
	}
	sess.mu.Unlock()

	if submit {
		h.dispatch(r, sess, GeneratorGrocery, payload)
	}
	http.Redirect(w, r, "/grocery", http.StatusSeeOther)
}

// dispatch starts a submission that outlives the request. The browser polls
// the page while it is Loading. A second generate while Loading is rejected
// by the orchestrator and surfaces as a notice.
func (h *Handler) dispatch(r *http.Request, sess *Session, generator string, payload any) {
	run := sess.Orchestrator(generator)

	done, err := run.Dispatch(context.WithoutCancel(r.Context()), payload)
	if err != nil {
		if errors.Is(err, submission.ErrInFlight) {
			sess.mu.Lock()
			sess.setNotice(generator, inFlightNotice)
			sess.mu.Unlock()
		}
		server.AddError(r.Context(), err)
		return
	}
	server.AddLogField(r.Context(), "generator", generator)

	h.inflight.Add(1)
	h.active.Add(1)
	go func() {
		defer h.inflight.Done()
		defer h.active.Add(-1)
		<-done
	}()
}

func (h *Handler) handleReset(generator string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := h.sessions.Get(w, r)
		sess.Orchestrator(generator).Reset()
		http.Redirect(w, r, "/"+generator, http.StatusSeeOther)
	}
}

// StateResponse is the JSON view of one generator for the current session.
type StateResponse struct {
	Generator string                  `json:"generator"`
	State     submission.DisplayState `json:"state"`
	Request   any                     `json:"request"`
	CanSubmit bool                    `json:"can_submit"`
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	generator := chi.URLParam(r, "generator")
	if generator != GeneratorRecipe && generator != GeneratorGrocery {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown generator"})
		return
	}

	sess := h.sessions.Get(w, r)
	state := sess.Orchestrator(generator).State()

	resp := StateResponse{Generator: generator, State: state}
	sess.mu.Lock()
	if generator == GeneratorRecipe {
		resp.Request = sess.recipe.Payload()
		resp.CanSubmit = sess.recipe.CanSubmit(state.IsLoading())
	} else {
		resp.Request = sess.grocery.Payload()
		resp.CanSubmit = sess.grocery.CanSubmit(state.IsLoading())
	}
	sess.mu.Unlock()

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
