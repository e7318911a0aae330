package api

import "github.com/eduba/publishgw/internal/runlog"

// InvokeResponse is returned when the agent exits zero.
type InvokeResponse struct {
	URL    *string `json:"url"`
	Output string  `json:"output"`
}

// ErrorResponse is returned on errors other than agent failures.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AgentFailureResponse is returned when the agent exits nonzero. Details is
// always present, empty when the agent printed nothing.
type AgentFailureResponse struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	InFlight      int64  `json:"in_flight"`
}

// InvocationListResponse is returned by GET /api/invocations.
type InvocationListResponse struct {
	Invocations []*runlog.Record `json:"invocations"`
}
