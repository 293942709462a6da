package provider

import (
	"sync"
	"time"
)

// Handle tracks one running invocation. It is returned by Spawn before the
// process finishes.
type Handle struct {
	ID      string
	Command string

	mu        sync.Mutex
	cancelled bool
	exited    bool
	sealed    bool
	stop      func()
	killTimer *time.Timer

	done   chan struct{}
	result Result
}

func newHandle(id, command string) *Handle {
	return &Handle{
		ID:      id,
		Command: command,
		done:    make(chan struct{}),
	}
}

// Completed returns a handle that already holds res. Useful for providers
// that resolve without a process and for test doubles.
func Completed(id, command string, res Result) *Handle {
	h := newHandle(id, command)
	h.finish(res)
	return h
}

// Cancel signals the invocation to stop. Only the first call on a running
// invocation sends a signal and returns true. Once the process has exited
// Cancel returns false, even while its output is still being collected.
func (h *Handle) Cancel() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled || h.exited || h.sealed {
		return false
	}
	h.cancelled = true
	if h.stop != nil {
		h.stop()
	}
	return true
}

// Wait blocks until the invocation finishes and returns its result.
func (h *Handle) Wait() Result {
	<-h.done
	return h.result
}

// Done is closed once the result is available.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancelled reports whether Cancel took effect.
func (h *Handle) Cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// markExited records that the process is gone.
func (h *Handle) markExited() {
	h.mu.Lock()
	h.exited = true
	h.mu.Unlock()
}

func (h *Handle) hasExited() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exited
}

// arm installs the function Cancel uses to stop the process.
func (h *Handle) arm(stop func()) {
	h.mu.Lock()
	h.stop = stop
	h.mu.Unlock()
}

// escalate schedules fn after grace unless the handle is sealed first.
// Called with h.mu held from within stop.
func (h *Handle) escalate(grace time.Duration, fn func()) {
	h.killTimer = time.AfterFunc(grace, fn)
}

// seal stops further cancellation and reports whether the invocation was
// cancelled. After seal, Cancel returns false.
func (h *Handle) seal() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sealed = true
	h.stop = nil
	if h.killTimer != nil {
		h.killTimer.Stop()
		h.killTimer = nil
	}
	return h.cancelled
}

// finish publishes the result and releases waiters.
func (h *Handle) finish(res Result) {
	h.seal()
	h.result = res
	close(h.done)
}
