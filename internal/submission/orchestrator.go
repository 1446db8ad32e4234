package submission

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/mealgen/internal/envelope"
	"github.com/tjfontaine/mealgen/internal/storage"
)

var (
	// ErrInFlight is returned by Submit while a previous submission is Loading.
	ErrInFlight = errors.New("a submission is already in progress")

	// ErrSuperseded is returned when the view moved on (Reset) before the
	// response arrived; the response was discarded.
	ErrSuperseded = errors.New("submission was superseded")
)

// Sender performs the outbound generator call.
type Sender interface {
	Generate(ctx context.Context, endpoint string, payload any) (*envelope.Payload, error)
}

// Recorder receives one record per completed submission.
type Recorder interface {
	RecordSubmission(ctx context.Context, sub *storage.Submission) error
}

// TransitionFunc observes every DisplayState replacement.
type TransitionFunc func(from, to DisplayState)

// Config describes one generator view.
type Config struct {
	// Generator names the view ("recipe", "grocery").
	Generator string
	// Endpoint resolves the URL at submit time so config reloads apply.
	Endpoint func() string
	// Timeout bounds the outbound call; zero means no extra bound.
	Timeout time.Duration
	// FailureMessage is shown when nothing more specific is known.
	FailureMessage string
	SessionID      string
}

// Orchestrator owns the DisplayState of one view.
type Orchestrator struct {
	cfg      Config
	sender   Sender
	recorder Recorder
	observe  TransitionFunc
	logger   *slog.Logger

	mu    sync.Mutex
	state DisplayState
	seq   uint64
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithObserver registers fn for every transition. fn runs with the state
// lock held and must not call back into the Orchestrator.
func WithObserver(fn TransitionFunc) Option {
	return func(o *Orchestrator) {
		o.observe = fn
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// New creates an Orchestrator in the Idle state.
func New(cfg Config, sender Sender, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		sender: sender,
		logger: slog.Default(),
		state:  Idle(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current DisplayState.
func (o *Orchestrator) State() DisplayState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Reset returns the view to Idle. A response to an in-flight dispatch that
// arrives afterwards is discarded.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq++
	o.replace(Idle())
}

// Outcome is the settled result of a dispatched submission.
type Outcome struct {
	State DisplayState
	Err   error
}

// Submit sends payload and resolves the view to Success or Failure. It
// returns ErrInFlight without side effects while Loading, and ErrSuperseded
// when the response is stale. The returned state is the view's state after
// the call.
func (o *Orchestrator) Submit(ctx context.Context, payload any) (DisplayState, error) {
	seq, endpoint, state, err := o.begin()
	if err != nil {
		return state, err
	}
	return o.finish(ctx, seq, endpoint, payload)
}

// Dispatch moves the view to Loading before returning and performs the call
// in the background. The channel receives exactly one Outcome.
func (o *Orchestrator) Dispatch(ctx context.Context, payload any) (<-chan Outcome, error) {
	seq, endpoint, _, err := o.begin()
	if err != nil {
		return nil, err
	}

	done := make(chan Outcome, 1)
	go func() {
		defer close(done)
		state, err := o.finish(ctx, seq, endpoint, payload)
		done <- Outcome{State: state, Err: err}
	}()
	return done, nil
}

func (o *Orchestrator) begin() (uint64, string, DisplayState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.IsLoading() {
		return 0, "", o.state, ErrInFlight
	}
	o.seq++
	o.replace(Loading(o.seq))
	return o.seq, o.cfg.Endpoint(), o.state, nil
}

func (o *Orchestrator) finish(ctx context.Context, seq uint64, endpoint string, payload any) (DisplayState, error) {
	callCtx := ctx
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := o.sender.Generate(callCtx, endpoint, payload)
	elapsed := time.Since(start)

	var next DisplayState
	if err != nil {
		classified := envelope.Classify(err, o.cfg.FailureMessage)
		next = Failed(seq, classified)
		o.logger.Warn("generator submission failed",
			slog.String("generator", o.cfg.Generator),
			slog.Uint64("sequence", seq),
			slog.String("kind", string(classified.Kind)),
			slog.Int("status", classified.StatusCode),
			slog.String("error", err.Error()),
		)
	} else {
		next = Succeeded(seq, result)
		o.logger.Info("generator submission succeeded",
			slog.String("generator", o.cfg.Generator),
			slog.Uint64("sequence", seq),
			slog.Duration("duration", elapsed),
		)
	}

	o.mu.Lock()
	stale := seq != o.seq
	if !stale {
		o.replace(next)
	}
	current := o.state
	o.mu.Unlock()

	o.record(ctx, seq, payload, next, stale, elapsed)

	if stale {
		o.logger.Info("discarding stale generator response",
			slog.String("generator", o.cfg.Generator),
			slog.Uint64("sequence", seq),
			slog.Uint64("latest", current.Sequence),
		)
		return current, ErrSuperseded
	}
	return current, nil
}

// replace must be called with mu held.
func (o *Orchestrator) replace(next DisplayState) {
	prev := o.state
	o.state = next
	if o.observe != nil {
		o.observe(prev, next)
	}
}

func (o *Orchestrator) record(ctx context.Context, seq uint64, payload any, outcome DisplayState, stale bool, elapsed time.Duration) {
	if o.recorder == nil {
		return
	}

	request, err := json.Marshal(payload)
	if err != nil {
		request = nil
	}

	sub := &storage.Submission{
		ID:        uuid.New().String(),
		SessionID: o.cfg.SessionID,
		Generator: o.cfg.Generator,
		Sequence:  seq,
		Request:   request,
		Outcome:   outcome.Phase.String(),
		ErrorKind: string(outcome.Kind),
		Message:   outcome.Message,
		Duration:  elapsed,
	}
	if stale {
		sub.Outcome = "superseded"
	}

	if err := o.recorder.RecordSubmission(context.WithoutCancel(ctx), sub); err != nil {
		o.logger.Error("failed to record submission",
			slog.String("generator", o.cfg.Generator),
			slog.String("error", err.Error()),
		)
	}
}
