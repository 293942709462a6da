// Package provider runs coding-agent CLIs as child processes behind one
// contract. Each supported CLI is a dialect plugged into a shared engine
// that handles spawning, streaming, cancellation and result extraction.
package provider

import "context"

// Provider spawns and supervises invocations of one CLI.
type Provider interface {
	Type() Type
	// Spawn starts an invocation and returns immediately. It never fails:
	// launch and runtime errors are reported through the handle's Result.
	Spawn(ctx context.Context, req Request) *Handle
	// Cancel stops a running invocation. It returns false if the invocation
	// already finished or was already cancelled.
	Cancel(h *Handle) bool
	// IsAvailable probes whether the CLI can run on this host.
	IsAvailable(ctx context.Context) bool
}

// Resumer is implemented by providers that can continue a prior session.
type Resumer interface {
	SupportsResume() bool
}

// SupportsResume reports whether p can continue a prior session.
func SupportsResume(p Provider) bool {
	r, ok := p.(Resumer)
	return ok && r.SupportsResume()
}
