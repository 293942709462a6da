package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"phobos.org.uk/foreman/internal/api"
	"phobos.org.uk/foreman/internal/fallback"
	"phobos.org.uk/foreman/internal/provider"
	"phobos.org.uk/foreman/internal/sessionid"
)

// Invocation states reported by the API.
const (
	stateRunning   = "running"
	stateCompleted = "completed"
	stateFailed    = "failed"
	stateCancelled = "cancelled"
)

// InvocationRequest is the POST /invocations body.
type InvocationRequest struct {
	Provider     string   `json:"provider,omitempty"`
	Prompt       string   `json:"prompt"`
	WorkDir      string   `json:"work_dir,omitempty"`
	Mode         string   `json:"mode,omitempty"`
	Model        string   `json:"model,omitempty"`
	SessionID    string   `json:"session_id,omitempty"`
	AllowedTools []string `json:"allowed_tools,omitempty"`
	LogID        string   `json:"log_id,omitempty"`
}

// InvocationView is the JSON form of an invocation.
type InvocationView struct {
	ID            string            `json:"invocation_id"`
	Provider      provider.Type     `json:"provider"`
	State         string            `json:"state"`
	LogID         string            `json:"log_id"`
	Command       string            `json:"command,omitempty"`
	PromptPreview string            `json:"prompt_preview"`
	StartedAt     time.Time         `json:"started_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	Chunks        int               `json:"chunks"`
	Outcome       *fallback.Outcome `json:"outcome,omitempty"`
}

// invocation is the service's record of one fallback run.
type invocation struct {
	mu              sync.Mutex
	view            InvocationView
	handle          *provider.Handle
	cancelRequested bool
}

func (inv *invocation) snapshot() InvocationView {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	v := inv.view
	if v.Outcome != nil {
		o := *v.Outcome
		v.Outcome = &o
	}
	return v
}

// attach records the current attempt's handle, cancelling it straight away if
// a cancel arrived between attempts.
func (inv *invocation) attach(h *provider.Handle) {
	inv.mu.Lock()
	inv.handle = h
	inv.view.Command = h.Command
	cancel := inv.cancelRequested
	inv.mu.Unlock()
	if cancel {
		h.Cancel()
	}
}

func (inv *invocation) chunk(provider.Chunk) {
	inv.mu.Lock()
	inv.view.Chunks++
	inv.mu.Unlock()
}

func (inv *invocation) complete(out fallback.Outcome) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	now := time.Now()
	inv.view.CompletedAt = &now
	inv.view.Outcome = &out
	switch {
	case out.Result.Success:
		inv.view.State = stateCompleted
	case inv.cancelRequested || out.Result.Error == provider.CancelledMessage:
		inv.view.State = stateCancelled
	default:
		inv.view.State = stateFailed
	}
	inv.handle = nil
}

func (s *Service) handleCreateInvocation(w http.ResponseWriter, r *http.Request) {
	var req InvocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ErrorValidation, "Invalid JSON: "+err.Error())
		return
	}
	if req.Prompt == "" {
		api.WriteError(w, http.StatusBadRequest, api.ErrorValidation, "prompt is required")
		return
	}

	typ := s.defaultProvider()
	if req.Provider != "" {
		t, err := provider.ParseType(req.Provider)
		if err != nil {
			api.WriteError(w, http.StatusBadRequest, api.ErrorValidation, err.Error())
			return
		}
		typ = t
	}
	mode := provider.Mode(req.Mode)
	if mode != "" && !mode.Valid() {
		api.WriteError(w, http.StatusBadRequest, api.ErrorValidation, "mode must be plan, code or analyze")
		return
	}
	if req.SessionID != "" && !sessionid.IsSafe(req.SessionID) {
		api.WriteError(w, http.StatusBadRequest, api.ErrorValidation, "session_id contains invalid characters")
		return
	}
	if req.LogID != "" && !sessionid.IsSafe(req.LogID) {
		api.WriteError(w, http.StatusBadRequest, api.ErrorValidation, "log_id contains invalid characters")
		return
	}

	id := uuid.NewString()
	logID := req.LogID
	if logID == "" {
		logID = id
	}

	inv := &invocation{view: InvocationView{
		ID:            id,
		Provider:      typ,
		State:         stateRunning,
		LogID:         logID,
		PromptPreview: api.PromptPreview(req.Prompt, 50),
		StartedAt:     time.Now(),
	}}
	preq := provider.Request{
		ID:           id,
		Prompt:       req.Prompt,
		WorkDir:      req.WorkDir,
		Mode:         mode,
		Model:        req.Model,
		SessionID:    req.SessionID,
		AllowedTools: req.AllowedTools,
		LogID:        logID,
		OnChunk:      inv.chunk,
	}

	s.mu.Lock()
	s.invocations[id] = inv
	s.wg.Add(1)
	s.mu.Unlock()

	s.log.WithInvocation(id).Info("invocation accepted", map[string]any{
		"provider":   string(typ),
		"session_id": req.SessionID,
		"log_id":     logID,
	})

	runner := fallback.New(s.log, fallback.WithMetrics(s.metrics), fallback.WithSpawnHook(inv.attach))
	p := s.registry.Get(typ)
	go func() {
		defer s.wg.Done()
		inv.complete(runner.Run(s.ctx, p, preq))
		s.mu.Lock()
		s.evictLocked()
		s.mu.Unlock()
	}()

	api.WriteJSON(w, http.StatusCreated, map[string]any{
		"invocation_id": id,
		"log_id":        logID,
		"provider":      typ,
		"state":         stateRunning,
	})
}

// evictLocked drops the oldest finished invocations until at most s.retain
// finished ones remain. Their session logs stay on disk.
func (s *Service) evictLocked() {
	var finished []InvocationView
	for _, inv := range s.invocations {
		if v := inv.snapshot(); v.CompletedAt != nil {
			finished = append(finished, v)
		}
	}
	if len(finished) <= s.retain {
		return
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].CompletedAt.Before(*finished[j].CompletedAt) })
	for _, v := range finished[:len(finished)-s.retain] {
		delete(s.invocations, v.ID)
	}
}

func (s *Service) lookup(id string) (*invocation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invocations[id]
	return inv, ok
}

func (s *Service) handleGetInvocation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	inv, ok := s.lookup(id)
	if !ok {
		notFound(w, "Invocation", id)
		return
	}
	api.WriteJSON(w, http.StatusOK, inv.snapshot())
}

func (s *Service) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	limit, err := api.IntParam(r.URL.Query(), "limit", 1, 500, 50)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ErrorValidation, err.Error())
		return
	}
	state := r.URL.Query().Get("state")

	s.mu.RLock()
	views := make([]InvocationView, 0, len(s.invocations))
	for _, inv := range s.invocations {
		v := inv.snapshot()
		if state != "" && v.State != state {
			continue
		}
		v.Outcome = nil
		views = append(views, v)
	}
	s.mu.RUnlock()

	sort.Slice(views, func(i, j int) bool { return views[i].StartedAt.After(views[j].StartedAt) })
	if len(views) > limit {
		views = views[:limit]
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"invocations": views})
}

func (s *Service) handleCancelInvocation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	inv, ok := s.lookup(id)
	if !ok {
		notFound(w, "Invocation", id)
		return
	}

	inv.mu.Lock()
	if inv.view.State != stateRunning || inv.cancelRequested {
		state := inv.view.State
		inv.mu.Unlock()
		api.WriteJSON(w, http.StatusConflict, map[string]any{
			"error":       api.ErrorAlreadyCompleted,
			"message":     fmt.Sprintf("Invocation %s has already finished or is being cancelled", id),
			"final_state": state,
		})
		return
	}
	inv.cancelRequested = true
	h := inv.handle
	inv.mu.Unlock()

	signalled := false
	if h != nil {
		signalled = h.Cancel()
	}
	s.log.WithInvocation(id).Info("invocation cancel requested", map[string]any{"signalled": signalled})

	api.WriteJSON(w, http.StatusOK, map[string]any{
		"invocation_id": id,
		"state":         stateCancelled,
		"message":       "Invocation cancellation initiated",
	})
}

// ProviderStatus is one entry of GET /providers.
type ProviderStatus struct {
	Type           provider.Type `json:"type"`
	Available      bool          `json:"available"`
	SupportsResume bool          `json:"supports_resume"`
	Default        bool          `json:"default"`
}

// handleProviders probes every provider concurrently, bounded by the
// configured availability timeout.
func (s *Service) handleProviders(w http.ResponseWriter, r *http.Request) {
	timeout := s.config.AvailabilityTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	types := s.registry.Types()
	statuses := make([]ProviderStatus, len(types))
	g, ctx := errgroup.WithContext(r.Context())
	for i, t := range types {
		i := i
		p := s.registry.Get(t)
		statuses[i] = ProviderStatus{
			Type:           t,
			SupportsResume: provider.SupportsResume(p),
			Default:        t == s.defaultProvider(),
		}
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			statuses[i].Available = p.IsAvailable(probeCtx)
			return nil
		})
	}
	_ = g.Wait()

	api.WriteJSON(w, http.StatusOK, map[string]any{"providers": statuses})
}
