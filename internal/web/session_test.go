package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tjfontaine/mealgen/internal/form"
	"github.com/tjfontaine/mealgen/internal/submission"
)

func testSessions(ttl time.Duration, now *time.Time) *Sessions {
	build := func(id string) *Session {
		cfg := submission.Config{Endpoint: func() string { return "" }}
		return &Session{
			ID:         id,
			HistoryID:  "history-" + id,
			recipe:     form.NewRecipeForm(),
			grocery:    form.NewGroceryForm(),
			recipeRun:  submission.New(cfg, nil),
			groceryRun: submission.New(cfg, nil),
		}
	}
	s := NewSessions(ttl, build, nil)
	s.now = func() time.Time { return *now }
	return s
}

func TestSessionsGetSetsCookie(t *testing.T) {
	now := time.Now()
	s := testSessions(time.Hour, &now)

	rec := httptest.NewRecorder()
	sess := s.Get(rec, httptest.NewRequest("GET", "/recipe", nil))

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}
	c := cookies[0]
	if c.Name != SessionCookie || c.Value != sess.ID || !c.HttpOnly || c.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie = %+v", c)
	}
	if c.MaxAge != 3600 {
		t.Errorf("MaxAge = %d, want 3600", c.MaxAge)
	}

	req := httptest.NewRequest("GET", "/recipe", nil)
	req.AddCookie(c)
	rec = httptest.NewRecorder()
	if again := s.Get(rec, req); again != sess {
		t.Error("Get() with cookie returned a different session")
	}
	refreshed := rec.Result().Cookies()
	if len(refreshed) != 1 || refreshed[0].Value != sess.ID || refreshed[0].MaxAge != 3600 {
		t.Errorf("existing session cookie = %+v, want the same ID reissued", refreshed)
	}
}

func TestSessionsCookieSlidesWithActivity(t *testing.T) {
	now := time.Now()
	s := testSessions(time.Hour, &now)

	rec := httptest.NewRecorder()
	sess := s.Get(rec, httptest.NewRequest("GET", "/", nil))
	cookie := rec.Result().Cookies()[0]

	// Each visit lands before the ttl runs out, well past the first cookie's lifetime.
	for i := 0; i < 3; i++ {
		now = now.Add(45 * time.Minute)

		req := httptest.NewRequest("GET", "/", nil)
		req.AddCookie(cookie)
		rec = httptest.NewRecorder()
		if got := s.Get(rec, req); got != sess {
			t.Fatalf("visit %d: session replaced", i)
		}

		cookies := rec.Result().Cookies()
		if len(cookies) != 1 || cookies[0].MaxAge != 3600 {
			t.Fatalf("visit %d: cookies = %+v, want MaxAge refreshed", i, cookies)
		}
		cookie = cookies[0]
	}
}

func TestSessionsExpireAndPrune(t *testing.T) {
	now := time.Now()
	s := testSessions(time.Minute, &now)

	rec := httptest.NewRecorder()
	sess := s.Get(rec, httptest.NewRequest("GET", "/", nil))
	cookie := rec.Result().Cookies()[0]

	now = now.Add(2 * time.Minute)

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(cookie)
	if _, ok := s.Lookup(req); ok {
		t.Error("Lookup() found an expired session")
	}

	fresh := s.Get(httptest.NewRecorder(), req)
	if fresh == sess {
		t.Error("expired session was reused")
	}

	if removed := s.Prune(); removed != 1 {
		t.Errorf("Prune() = %d, want 1", removed)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestSessionsUnknownCookie(t *testing.T) {
	now := time.Now()
	s := testSessions(0, &now)

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "forged"})

	rec := httptest.NewRecorder()
	sess := s.Get(rec, req)
	if sess.ID == "forged" {
		t.Error("session ID taken from an unknown cookie")
	}
	if c := rec.Result().Cookies(); len(c) != 1 || c[0].MaxAge != 0 {
		t.Errorf("cookies = %+v, want one session cookie without MaxAge", c)
	}
}
