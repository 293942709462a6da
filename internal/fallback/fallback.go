// Package fallback runs an invocation that tries to resume a prior session
// and retries fresh when the resumed attempt fails or produces nothing.
package fallback

import (
	"context"
	"strings"

	"phobos.org.uk/foreman/internal/logging"
	"phobos.org.uk/foreman/internal/metrics"
	"phobos.org.uk/foreman/internal/provider"
)

// Outcome is the final result plus how it was reached.
type Outcome struct {
	Result   provider.Result `json:"result"`
	Attempts int             `json:"attempts"`
	FellBack bool            `json:"fell_back"`
	Resumed  bool            `json:"resumed"`
	// Path lists the protocol states visited, starting at Idle.
	Path []State `json:"path"`
}

// Runner spawns invocations with resume-then-fresh semantics.
type Runner struct {
	log     *logging.Logger
	metrics *metrics.Metrics
	// onSpawn observes every handle as it is created so callers can cancel
	// whichever attempt is current.
	onSpawn func(*provider.Handle)
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics records fallbacks on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithSpawnHook calls fn with each handle the runner creates.
func WithSpawnHook(fn func(*provider.Handle)) Option {
	return func(r *Runner) { r.onSpawn = fn }
}

// New creates a Runner.
func New(log *logging.Logger, opts ...Option) *Runner {
	if log == nil {
		log = logging.Discard("fallback")
	}
	r := &Runner{log: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes req on p. When req carries a session id and p can resume, the
// first attempt resumes it; a failed or empty resumed result is retried once
// as a fresh session. Otherwise a single fresh attempt runs. Run blocks until
// the final attempt finishes.
func (r *Runner) Run(ctx context.Context, p provider.Provider, req provider.Request) Outcome {
	st := newPath()
	if req.SessionID != "" && provider.SupportsResume(p) {
		st.move(AttemptingResume)
		resumeReq := req
		resumeReq.Resume = true
		res := r.attempt(ctx, p, resumeReq)
		if res.Success && strings.TrimSpace(res.Output) != "" {
			st.move(Resumed)
			return Outcome{Result: res, Attempts: 1, Resumed: true, Path: st.states}
		}
		if ctx.Err() != nil || res.Error == provider.CancelledMessage {
			st.move(Done)
			return Outcome{Result: res, Attempts: 1, Path: st.states}
		}
		st.move(FallingBack)

		reason := res.Error
		if res.Success {
			reason = "empty output"
		}
		r.log.Warn("resume failed, starting fresh session", map[string]any{
			"provider":   string(p.Type()),
			"session_id": req.SessionID,
			"error":      reason,
		})
		r.metrics.Fallback(string(p.Type()))

		st.move(FreshAttempt)
		fresh := r.attempt(ctx, p, freshRequest(req))
		st.move(Done)
		return Outcome{Result: fresh, Attempts: 2, FellBack: true, Path: st.states}
	}

	st.move(FreshAttempt)
	res := r.attempt(ctx, p, freshRequest(req))
	st.move(Done)
	return Outcome{Result: res, Attempts: 1, Path: st.states}
}

func (r *Runner) attempt(ctx context.Context, p provider.Provider, req provider.Request) provider.Result {
	h := p.Spawn(ctx, req)
	if r.onSpawn != nil {
		r.onSpawn(h)
	}
	return h.Wait()
}

// freshRequest clears session continuity. Invocation ids stay stable across
// attempts so both land in the same session log.
func freshRequest(req provider.Request) provider.Request {
	req.Resume = false
	req.SessionID = ""
	return req
}
