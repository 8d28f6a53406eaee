package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/slot-reservations/internal/application"
)

var (
	errBadRequestBody   = errors.New("request body is not valid")
	errMissingSlotIndex = errors.New("slot_index is required")
	errMissingTeam      = errors.New("team is required")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, code string, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
	}
	r.writeJSON(ctx, w, status, errorResponse{ErrorCode: code, Message: message})
}

// handleServiceError maps application errors onto status codes. Store and
// catalog failures are retryable and carry Retry-After.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, "unexpected", errors.New("unknown error"))
		return
	}

	resp := errorResponse{ErrorCode: application.ErrorKind(err), Message: application.Message(err)}
	var already *application.AlreadyReservedError
	switch {
	case errors.As(err, &already):
		if already.Team != "" {
			resp.SessionID = already.SessionID
			resp.Team = already.Team
			index := already.SlotIndex
			resp.SlotIndex = &index
		}
		r.writeJSON(ctx, w, http.StatusConflict, resp)
	case errors.Is(err, application.ErrAlreadyReserved),
		errors.Is(err, application.ErrSlotTaken),
		errors.Is(err, application.ErrNoReservation):
		r.writeJSON(ctx, w, http.StatusConflict, resp)
	case errors.Is(err, application.ErrInvalidSlot):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, resp)
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, resp)
	case application.Retryable(err):
		w.Header().Set("Retry-After", "1")
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, resp)
	case errors.Is(err, context.DeadlineExceeded):
		w.Header().Set("Retry-After", "1")
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, resp)
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "unexpected service error", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, resp)
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

type errorResponse struct {
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	Team      string `json:"team,omitempty"`
	SlotIndex *int   `json:"slot_index,omitempty"`
}
