package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tjfontaine/mealgen/internal/admin"
	"github.com/tjfontaine/mealgen/internal/config"
	"github.com/tjfontaine/mealgen/internal/envelope"
	"github.com/tjfontaine/mealgen/internal/form"
	"github.com/tjfontaine/mealgen/internal/storage"
	"github.com/tjfontaine/mealgen/internal/storage/memory"
	"github.com/tjfontaine/mealgen/internal/submission"
)

type stubSender struct {
	mu        sync.Mutex
	endpoints []string
	payloads  []any
	result    *envelope.Payload
	err       error
	release   chan struct{}
}

func (s *stubSender) Generate(ctx context.Context, endpoint string, payload any) (*envelope.Payload, error) {
	s.mu.Lock()
	s.endpoints = append(s.endpoints, endpoint)
	s.payloads = append(s.payloads, payload)
	release := s.release
	s.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.result, s.err
}

func (s *stubSender) lastPayload(t *testing.T) any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.payloads) == 0 {
		t.Fatal("sender was never called")
	}
	return s.payloads[len(s.payloads)-1]
}

// logBuffer collects log output written from handler and submission goroutines.
type logBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testEnv struct {
	handler *Handler
	logs    *logBuffer
	server  *httptest.Server
	client  *http.Client
	store   *memory.Store
	gens    *config.GeneratorsConfig
	gensMu  *sync.Mutex
}

func newTestEnv(t *testing.T, sender submission.Sender) *testEnv {
	t.Helper()

	store := memory.New()
	gens := &config.GeneratorsConfig{
		Recipe:  config.GeneratorConfig{Endpoint: "http://generator.test/dev/ask"},
		Grocery: config.GeneratorConfig{Endpoint: "http://generator.test/dev/grocery"},
		Timeout: 5 * time.Second,
	}
	var gensMu sync.Mutex
	logs := &logBuffer{}

	h, err := NewHandler(Options{
		Sender:   sender,
		Recorder: store,
		Generators: func() config.GeneratorsConfig {
			gensMu.Lock()
			defer gensMu.Unlock()
			return *gens
		},
		SessionTTL: time.Hour,
		Logger:     slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}

	return &testEnv{
		handler: h,
		logs:    logs,
		server:  srv,
		client:  &http.Client{Jar: jar},
		store:   store,
		gens:    gens,
		gensMu:  &gensMu,
	}
}

func (e *testEnv) get(t *testing.T, path string) (int, string) {
	t.Helper()
	resp, err := e.client.Get(e.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func (e *testEnv) post(t *testing.T, path string, values url.Values) (int, string) {
	t.Helper()
	resp, err := e.client.PostForm(e.server.URL+path, values)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func (e *testEnv) state(t *testing.T, generator string) StateResponse {
	t.Helper()
	status, body := e.get(t, "/api/"+generator+"/state")
	if status != http.StatusOK {
		t.Fatalf("state status = %d, body = %s", status, body)
	}
	var resp struct {
		Generator string `json:"generator"`
		State     struct {
			Phase   string         `json:"phase"`
			Message string         `json:"message"`
			Content map[string]any `json:"content"`
		} `json:"state"`
		CanSubmit bool `json:"can_submit"`
	}
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	out := StateResponse{Generator: resp.Generator, CanSubmit: resp.CanSubmit}
	out.State.Message = resp.State.Message
	switch resp.State.Phase {
	case "loading":
		out.State.Phase = submission.PhaseLoading
	case "success":
		out.State.Phase = submission.PhaseSuccess
	case "failure":
		out.State.Phase = submission.PhaseFailure
	}
	return out
}

func TestRootRedirectsToRecipe(t *testing.T) {
	env := newTestEnv(t, &stubSender{})
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}

	resp, err := client.Get(env.server.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/recipe" {
		t.Errorf("GET / = %d %q, want 302 /recipe", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, &stubSender{})
	status, body := env.get(t, "/healthz")
	if status != http.StatusOK || !strings.Contains(body, `"ok"`) {
		t.Errorf("GET /healthz = %d %s", status, body)
	}
}

func TestRecipeEditsAndGenerate(t *testing.T) {
	sender := &stubSender{result: &envelope.Payload{Response: map[string]any{
		"name":   "Chicken Adobo",
		"recipe": []any{"chicken", "soy sauce"},
		"steps":  []any{"Simmer."},
	}}}
	env := newTestEnv(t, sender)

	status, body := env.get(t, "/recipe")
	if status != http.StatusOK {
		t.Fatalf("GET /recipe = %d", status)
	}
	if !strings.Contains(body, `value="generate" disabled`) {
		t.Error("generate should be disabled with no ingredients")
	}

	for _, ing := range []string{"chicken", "garlic", "soy sauce"} {
		env.post(t, "/recipe", url.Values{"op": {"add_ingredient"}, "ingredient_input": {ing}})
	}
	env.post(t, "/recipe?op=remove_ingredient&index=1", url.Values{"diets_present": {"1"}})

	_, body = env.post(t, "/recipe", url.Values{
		"op":                 {"add_equipment"},
		"equipment_input":    {"wok"},
		"cuisine":            {"Filipino"},
		"servings":           {"6"},
		"cookingTime":        {"45"},
		"diets_present":      {"1"},
		"dietaryPreferences": {"Halal"},
	})
	if strings.Contains(body, `value="generate" disabled`) {
		t.Error("generate should be enabled once ingredients exist")
	}

	env.post(t, "/recipe", url.Values{"op": {"generate"}, "diets_present": {"1"}, "dietaryPreferences": {"Halal"}})
	env.handler.Wait()

	want := form.RecipeRequest{
		Ingredients:        []string{"chicken", "soy sauce"},
		Cuisine:            "Filipino",
		DietaryPreferences: []string{"Halal"},
		Servings:           6,
		Equipment:          []string{"wok"},
		CookingTime:        45,
	}
	if diff := cmp.Diff(want, sender.lastPayload(t)); diff != "" {
		t.Errorf("sent payload mismatch (-want +got):\n%s", diff)
	}
	if sender.endpoints[0] != "http://generator.test/dev/ask" {
		t.Errorf("endpoint = %q", sender.endpoints[0])
	}

	st := env.state(t, GeneratorRecipe)
	if st.State.Phase != submission.PhaseSuccess {
		t.Fatalf("phase = %v, want success", st.State.Phase)
	}

	_, body = env.get(t, "/recipe")
	for _, wantText := range []string{"Chicken Adobo", "<li>soy sauce</li>", "<li>Simmer.</li>"} {
		if !strings.Contains(body, wantText) {
			t.Errorf("page missing %q", wantText)
		}
	}
}

func TestRecipeGenerateWithoutIngredientsIsIgnored(t *testing.T) {
	sender := &stubSender{}
	env := newTestEnv(t, sender)

	env.post(t, "/recipe", url.Values{"op": {"generate"}})
	env.handler.Wait()

	if len(sender.payloads) != 0 {
		t.Errorf("sender called %d times, want 0", len(sender.payloads))
	}
	if st := env.state(t, GeneratorRecipe); st.State.Phase != submission.PhaseIdle {
		t.Errorf("phase = %v, want idle", st.State.Phase)
	}
}

func TestRecipeFailureShowsAlert(t *testing.T) {
	env := newTestEnv(t, &stubSender{err: envelope.ErrDomain("bad input")})

	env.post(t, "/recipe", url.Values{"op": {"add_ingredient"}, "ingredient_input": {"rice"}})
	env.post(t, "/recipe", url.Values{"op": {"generate"}})
	env.handler.Wait()

	_, body := env.get(t, "/recipe")
	if !strings.Contains(body, `role="alert">bad input`) {
		t.Error("failure message missing from page")
	}

	subs, err := env.store.ListSubmissions(context.Background(), storage.ListOptions{Generator: GeneratorRecipe})
	if err != nil {
		t.Fatalf("ListSubmissions() error = %v", err)
	}
	if len(subs) != 1 || subs[0].Outcome != "failure" {
		t.Errorf("history = %+v", subs)
	}
}

func TestLoadingRejectsSecondSubmitAndResetDiscards(t *testing.T) {
	sender := &stubSender{
		result:  &envelope.Payload{Response: map[string]any{"meal_name": "Pancit"}},
		release: make(chan struct{}),
	}
	env := newTestEnv(t, sender)

	values := url.Values{
		"op":           {"generate"},
		"meal_name":    {"Pancit"},
		"servings":     {"2"},
		"budget_limit": {"15.5"},
		"region":       {"PH"},
	}
	env.post(t, "/grocery", values)

	_, body := env.get(t, "/grocery")
	if !strings.Contains(body, `http-equiv="refresh"`) {
		t.Error("loading page should auto-refresh")
	}
	if env.handler.InFlight() != 1 {
		t.Errorf("InFlight() = %d, want 1", env.handler.InFlight())
	}

	_, body = env.post(t, "/grocery", values)
	if !strings.Contains(body, "already in progress") {
		t.Error("second submit should surface the in-flight notice")
	}

	env.post(t, "/grocery/reset", nil)
	close(sender.release)
	env.handler.Wait()

	if st := env.state(t, GeneratorGrocery); st.State.Phase != submission.PhaseIdle {
		t.Errorf("phase after reset = %v, want idle", st.State.Phase)
	}
	if len(sender.payloads) != 1 {
		t.Fatalf("sender called %d times, want 1", len(sender.payloads))
	}
	want := form.GroceryRequest{MealName: "Pancit", Servings: 2, BudgetLimit: 15.5, Region: "PH"}
	if diff := cmp.Diff(want, sender.payloads[0]); diff != "" {
		t.Errorf("sent payload mismatch (-want +got):\n%s", diff)
	}
}

func TestEndpointFollowsConfigReload(t *testing.T) {
	sender := &stubSender{result: &envelope.Payload{Response: map[string]any{}}}
	env := newTestEnv(t, sender)

	env.post(t, "/grocery", url.Values{"op": {"generate"}, "meal_name": {"Soup"}})
	env.handler.Wait()

	env.gensMu.Lock()
	env.gens.Grocery.Endpoint = "http://localhost:8081/dev/grocery"
	env.gensMu.Unlock()

	env.post(t, "/grocery", url.Values{"op": {"generate"}, "meal_name": {"Soup"}})
	env.handler.Wait()

	want := []string{"http://generator.test/dev/grocery", "http://localhost:8081/dev/grocery"}
	if diff := cmp.Diff(want, sender.endpoints); diff != "" {
		t.Errorf("endpoints mismatch (-want +got):\n%s", diff)
	}
}

func TestStateUnknownGenerator(t *testing.T) {
	env := newTestEnv(t, &stubSender{})
	status, _ := env.get(t, "/api/pizza/state")
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	env := newTestEnv(t, &stubSender{})
	env.post(t, "/recipe", url.Values{"op": {"add_ingredient"}, "ingredient_input": {"tofu"}})

	other := &http.Client{}
	resp, err := other.Get(env.server.URL + "/api/recipe/state")
	if err != nil {
		t.Fatalf("GET state: %v", err)
	}
	defer resp.Body.Close()
	var st struct {
		Request form.RecipeRequest `json:"request"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(st.Request.Ingredients) != 0 {
		t.Errorf("new session sees ingredients %v", st.Request.Ingredients)
	}
	if env.handler.Sessions().Len() != 2 {
		t.Errorf("Sessions().Len() = %d, want 2", env.handler.Sessions().Len())
	}
}

func (e *testEnv) sessionCookie(t *testing.T) *http.Cookie {
	t.Helper()
	u, err := url.Parse(e.server.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	for _, c := range e.client.Jar.Cookies(u) {
		if c.Name == SessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie in jar")
	return nil
}

func TestHistoryNeverExposesSessionCookie(t *testing.T) {
	sender := &stubSender{result: &envelope.Payload{Response: map[string]any{"name": "Private Soup"}}}
	env := newTestEnv(t, sender)

	env.post(t, "/recipe", url.Values{"op": {"add_ingredient"}, "ingredient_input": {"egg"}})
	env.post(t, "/recipe", url.Values{"op": {"generate"}})
	env.handler.Wait()

	cookie := env.sessionCookie(t)

	adminSrv := admin.NewServer(admin.Options{Store: env.store})
	rec := httptest.NewRecorder()
	adminSrv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/history = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), cookie.Value) {
		t.Fatalf("history exposes the session cookie: %s", rec.Body.String())
	}

	var history struct {
		Submissions []storage.Submission `json:"submissions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.Submissions) != 1 || history.Submissions[0].SessionID == "" {
		t.Fatalf("history = %+v, want one submission tagged with a history ID", history.Submissions)
	}

	// Presenting the recorded ID as a cookie must not reach the session.
	req, _ := http.NewRequest("GET", env.server.URL+"/api/recipe/state", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: history.Submissions[0].SessionID})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET state: %v", err)
	}
	defer resp.Body.Close()
	var st struct {
		State struct {
			Phase string `json:"phase"`
		} `json:"state"`
		Request form.RecipeRequest `json:"request"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if st.State.Phase != "idle" || len(st.Request.Ingredients) != 0 {
		t.Errorf("history ID opened the session: phase=%s ingredients=%v", st.State.Phase, st.Request.Ingredients)
	}

	if strings.Contains(env.logs.String(), cookie.Value) {
		t.Error("logs contain the session cookie value")
	}
}
