package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/eduba/publishgw/internal/command"
	"github.com/eduba/publishgw/internal/gateway"
	"github.com/eduba/publishgw/internal/runlog"
	"github.com/eduba/publishgw/internal/runner"
	"github.com/eduba/publishgw/internal/workspace"
)

const headerInvocationID = "X-Invocation-ID"

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		InFlight:      s.gateway.InFlight(),
	})
}

// handleInvoke handles POST /api/create-page and POST /api/sector-chat.
// The response is written only after the agent has exited and the
// workspace is gone.
func (s *Server) handleInvoke(kind command.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadSize)

		d, err := command.Decode(r, kind, command.DefaultMaxMemory)
		if err != nil {
			s.writeInvokeError(w, r, err)
			return
		}

		ctx := gateway.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		inv, err := s.gateway.Invoke(ctx, d)
		if inv.ID != "" {
			w.Header().Set(headerInvocationID, inv.ID)
		}
		if err != nil {
			s.writeInvokeError(w, r, err)
			return
		}

		if !inv.Result.OK {
			respondJSON(w, http.StatusInternalServerError, AgentFailureResponse{
				Error:   sentenceCase(inv.Result.Reason),
				Details: inv.Result.Diagnostic,
			})
			return
		}
		respondJSON(w, http.StatusOK, InvokeResponse{URL: inv.Result.URL, Output: inv.Result.Output})
	}
}

// writeInvokeError maps pipeline errors to HTTP statuses. Only validation
// messages reach the client; everything else is logged.
func (s *Server) writeInvokeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, command.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.As(err, &tooLarge):
		s.writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	case errors.Is(err, command.ErrMalformed):
		s.writeError(w, http.StatusBadRequest, "malformed form data")
		return
	case errors.Is(err, gateway.ErrBusy):
		w.Header().Set("Retry-After", "5")
		s.writeError(w, http.StatusServiceUnavailable, gateway.ErrBusy.Error())
		return
	}

	msg := "internal error"
	switch {
	case errors.Is(err, workspace.ErrStaging):
		msg = "failed to stage uploads"
	case errors.Is(err, runner.ErrLaunch):
		msg = "failed to start agent"
	}
	s.logger.Error("invocation error",
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
		"invocation_id", w.Header().Get(headerInvocationID),
		"error", err,
	)
	s.writeError(w, http.StatusInternalServerError, msg)
}

// handleListInvocations handles GET /api/invocations?limit=N
func (s *Server) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	recs, err := s.runs.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list invocations", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list invocations")
		return
	}
	respondJSON(w, http.StatusOK, InvocationListResponse{Invocations: recs})
}

// handleGetInvocation handles GET /api/invocations/{id}
func (s *Server) handleGetInvocation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.runs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, runlog.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "invocation not found")
			return
		}
		s.logger.Error("failed to retrieve invocation", "invocation_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve invocation")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

func sentenceCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
