package web

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/mealgen/internal/form"
	"github.com/tjfontaine/mealgen/internal/submission"
)

// SessionCookie names the browser cookie holding the session ID.
const SessionCookie = "mealgen_session"

// Session is one browser's form and submission state. Forms are guarded by
// mu; the orchestrators guard themselves.
type Session struct {
	// ID is the cookie value and must never leave the session table.
	ID string
	// HistoryID identifies the session in logs and submission history.
	HistoryID string

	mu            sync.Mutex
	recipe        *form.RecipeForm
	grocery       *form.GroceryForm
	recipeNotice  string
	groceryNotice string
	lastSeen      time.Time

	recipeRun  *submission.Orchestrator
	groceryRun *submission.Orchestrator
}

// Orchestrator returns the orchestrator for generator, or nil.
func (s *Session) Orchestrator(generator string) *submission.Orchestrator {
	switch generator {
	case GeneratorRecipe:
		return s.recipeRun
	case GeneratorGrocery:
		return s.groceryRun
	default:
		return nil
	}
}

// setNotice records a one-shot message for generator. mu must be held.
func (s *Session) setNotice(generator, msg string) {
	if generator == GeneratorRecipe {
		s.recipeNotice = msg
	} else {
		s.groceryNotice = msg
	}
}

// takeNotice returns and clears the message for generator. mu must be held.
func (s *Session) takeNotice(generator string) string {
	var msg string
	if generator == GeneratorRecipe {
		msg, s.recipeNotice = s.recipeNotice, ""
	} else {
		msg, s.groceryNotice = s.groceryNotice, ""
	}
	return msg
}

// Sessions is an in-memory session table keyed by cookie.
type Sessions struct {
	ttl     time.Duration
	build   func(id string) *Session
	now     func() time.Time
	logger  *slog.Logger
	mu      sync.Mutex
	entries map[string]*Session
}

// NewSessions creates a table whose entries expire after ttl of inactivity.
// build constructs the state for a new session ID.
func NewSessions(ttl time.Duration, build func(id string) *Session, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{
		ttl:     ttl,
		build:   build,
		now:     time.Now,
		logger:  logger,
		entries: make(map[string]*Session),
	}
}

// Get returns the caller's session, creating one when the request carries no
// live session. The cookie is reissued on every call.
func (s *Sessions) Get(w http.ResponseWriter, r *http.Request) *Session {
	now := s.now()

	if c, err := r.Cookie(SessionCookie); err == nil {
		s.mu.Lock()
		sess, ok := s.entries[c.Value]
		if ok && !s.expired(sess, now) {
			sess.mu.Lock()
			sess.lastSeen = now
			sess.mu.Unlock()
			s.mu.Unlock()
			s.setCookie(w, r, sess)
			return sess
		}
		s.mu.Unlock()
	}

	sess := s.build(uuid.New().String())
	sess.lastSeen = now

	s.mu.Lock()
	s.entries[sess.ID] = sess
	s.mu.Unlock()

	s.setCookie(w, r, sess)
	s.logger.Debug("session created", slog.String("history_id", sess.HistoryID))
	return sess
}

// setCookie (re)issues the session cookie so its MaxAge slides with activity.
func (s *Sessions) setCookie(w http.ResponseWriter, r *http.Request, sess *Session) {
	cookie := &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
	if s.ttl > 0 {
		cookie.MaxAge = int(s.ttl.Seconds())
	}
	http.SetCookie(w, cookie)
}

// Lookup returns an existing live session without creating one.
func (s *Sessions) Lookup(r *http.Request) (*Session, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.entries[c.Value]
	if !ok || s.expired(sess, s.now()) {
		return nil, false
	}
	return sess, true
}

// Len reports the number of sessions held, expired or not.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Prune drops expired sessions and returns how many were removed. Sessions
// with a submission still Loading are kept.
func (s *Sessions) Prune() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.entries {
		if !s.expired(sess, now) {
			continue
		}
		if sess.recipeRun.State().IsLoading() || sess.groceryRun.State().IsLoading() {
			continue
		}
		delete(s.entries, id)
		removed++
	}
	return removed
}

// Run prunes on every tick until ctx is done.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Prune(); n > 0 {
				s.logger.Debug("pruned idle sessions", slog.Int("count", n))
			}
		}
	}
}

// expired must be called with s.mu held.
func (s *Sessions) expired(sess *Session, now time.Time) bool {
	if s.ttl <= 0 {
		return false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return now.Sub(sess.lastSeen) > s.ttl
}
