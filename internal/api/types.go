// Package api defines shared types and constants for the foreman service.
package api

// Component types identify the kind of component.
const (
	TypeOrchestrator = "orchestrator"
)

// Interface names identify component capabilities.
const (
	InterfaceStatusable = "statusable"
	InterfaceInvokable  = "invokable"
	InterfaceObservable = "observable"
)

// Error codes returned in JSON error bodies.
const (
	ErrorValidation       = "validation_error"
	ErrorNotFound         = "not_found"
	ErrorAlreadyCompleted = "already_completed"
	ErrorUnauthorized     = "unauthorized"
	ErrorLogsUnavailable  = "session_logs_unavailable"
)

// Execution modes accepted by providers.
const (
	ModePlan    = "plan"
	ModeCode    = "code"
	ModeAnalyze = "analyze"
)
