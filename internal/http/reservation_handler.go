package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/slot-reservations/internal/application"
)

type sessionLister interface {
	ListActiveSessions(ctx context.Context) ([]application.SessionDetails, error)
}

type reconciler interface {
	Reconcile(ctx context.Context, principal application.Principal, sessionID string) (*application.View, error)
}

type coordinator interface {
	Reserve(ctx context.Context, view *application.View, team string, index int) (application.Reservation, error)
	Release(ctx context.Context, view *application.View) error
}

type eventStream interface {
	Serve(w http.ResponseWriter, r *http.Request, sessionID, userID string) error
}

// ReservationHandler serves the session and reservation endpoints.
type ReservationHandler struct {
	sessions    sessionLister
	reconciler  reconciler
	coordinator coordinator
	events      eventStream
	responder   responder
	logger      *slog.Logger
}

// NewReservationHandler constructs the handler. events may be nil, in which
// case the events endpoint responds 404.
func NewReservationHandler(sessions sessionLister, reconciler reconciler, coordinator coordinator, events eventStream, logger *slog.Logger) *ReservationHandler {
	base := defaultLogger(logger)
	return &ReservationHandler{
		sessions:    sessions,
		reconciler:  reconciler,
		coordinator: coordinator,
		events:      events,
		responder:   newResponder(base),
		logger:      base,
	}
}

func (h *ReservationHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "ReservationHandler", operation, attrs...)
}

// ListSessions handles GET /sessions.
func (h *ReservationHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.ListActiveSessions(r.Context())
	if err != nil {
		h.log(r.Context(), "ListSessions").ErrorContext(r.Context(), "listing sessions failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	resp := sessionListResponse{Sessions: make([]sessionDTO, 0, len(sessions))}
	for _, session := range sessions {
		resp.Sessions = append(resp.Sessions, toSessionDTO(session))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

// GetSession handles GET /sessions/{sessionID}.
func (h *ReservationHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	view, ok := h.load(w, r, "GetSession", principal)
	if !ok {
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toViewDTO(view))
}

// Reserve handles POST /sessions/{sessionID}/reservation.
func (h *ReservationHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Reserve", "principal_id", principal.UserID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode reserve request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, "bad_request", errBadRequestBody)
		return
	}
	if strings.TrimSpace(req.Team) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, "bad_request", errMissingTeam)
		return
	}
	if req.SlotIndex == nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, "bad_request", errMissingSlotIndex)
		return
	}

	view, ok := h.load(w, r, "Reserve", principal)
	if !ok {
		return
	}

	reservation, err := h.coordinator.Reserve(r.Context(), view, req.Team, *req.SlotIndex)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Reserve", "principal_id", principal.UserID, "session_id", view.Session.ID).
		InfoContext(r.Context(), "reservation created", "team", reservation.Team, "slot_index", reservation.SlotIndex)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, reserveResponse{
		Reservation: toReservationDTO(reservation),
		View:        toViewDTO(view),
	})
}

// Release handles DELETE /sessions/{sessionID}/reservation.
func (h *ReservationHandler) Release(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	view, ok := h.load(w, r, "Release", principal)
	if !ok {
		return
	}

	if err := h.coordinator.Release(r.Context(), view); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toViewDTO(view))
}

// Events handles GET /sessions/{sessionID}/events.
func (h *ReservationHandler) Events(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		http.NotFound(w, r)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	view, ok := h.load(w, r, "Events", principal)
	if !ok {
		return
	}

	if err := h.events.Serve(w, r, view.Session.Key, principal.UserID); err != nil {
		// The upgrader has already written the failure response.
		h.log(r.Context(), "Events", "principal_id", principal.UserID).WarnContext(r.Context(), "websocket upgrade failed", "error", err)
	}
}

// load reconciles the caller's view of the session named in the path.
func (h *ReservationHandler) load(w http.ResponseWriter, r *http.Request, operation string, principal application.Principal) (*application.View, bool) {
	sessionID := chi.URLParam(r, "sessionID")
	view, err := h.reconciler.Reconcile(r.Context(), principal, sessionID)
	if err != nil {
		h.log(r.Context(), operation, "principal_id", principal.UserID, "session_id", sessionID).
			WarnContext(r.Context(), "loading session failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return nil, false
	}
	return view, true
}

type reserveRequest struct {
	Team      string `json:"team"`
	SlotIndex *int   `json:"slot_index"`
}

type teamLayoutDTO struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

type sessionDTO struct {
	ID     string          `json:"id"`
	Key    string          `json:"key"`
	Event  string          `json:"event"`
	Date   string          `json:"date"`
	Time   string          `json:"time"`
	Status string          `json:"status"`
	Teams  []teamLayoutDTO `json:"teams"`
}

type sessionListResponse struct {
	Sessions []sessionDTO `json:"sessions"`
}

type slotDTO struct {
	Index       int        `json:"index"`
	Reserved    bool       `json:"reserved"`
	Mine        bool       `json:"mine,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	ReservedAt  *time.Time `json:"reserved_at,omitempty"`
}

type teamDTO struct {
	Name     string    `json:"name"`
	Capacity int       `json:"capacity"`
	Occupied int       `json:"occupied"`
	Slots    []slotDTO `json:"slots"`
}

type reservationDTO struct {
	SessionID  string    `json:"session_id"`
	Team       string    `json:"team"`
	SlotIndex  int       `json:"slot_index"`
	ReservedAt time.Time `json:"reserved_at"`
}

type viewDTO struct {
	Session     sessionDTO      `json:"session"`
	DisplayName string          `json:"display_name"`
	Teams       []teamDTO       `json:"teams"`
	Reservation *reservationDTO `json:"reservation"`
	Consistent  bool            `json:"consistent"`
	Stale       bool            `json:"stale,omitempty"`
}

type reserveResponse struct {
	Reservation reservationDTO `json:"reservation"`
	View        viewDTO        `json:"view"`
}

func toSessionDTO(session application.SessionDetails) sessionDTO {
	dto := sessionDTO{
		ID:     session.ID,
		Key:    session.Key,
		Event:  session.Event,
		Date:   session.Date,
		Time:   session.Time,
		Status: session.Status,
		Teams:  make([]teamLayoutDTO, 0, len(session.Teams)),
	}
	for _, team := range session.Teams {
		dto.Teams = append(dto.Teams, teamLayoutDTO{Name: team.Name, Capacity: team.Capacity})
	}
	return dto
}

func toReservationDTO(reservation application.Reservation) reservationDTO {
	return reservationDTO{
		SessionID:  reservation.SessionID,
		Team:       reservation.Team,
		SlotIndex:  reservation.SlotIndex,
		ReservedAt: reservation.ReservedAt.UTC(),
	}
}

func toViewDTO(view *application.View) viewDTO {
	dto := viewDTO{
		Session:     toSessionDTO(view.Session),
		DisplayName: view.DisplayName,
		Teams:       make([]teamDTO, 0, len(view.Teams)),
		Consistent:  view.Consistent,
		Stale:       view.Stale,
	}
	for _, team := range view.Teams {
		td := teamDTO{Name: team.Name, Capacity: team.Capacity, Occupied: team.Occupied, Slots: make([]slotDTO, 0, len(team.Slots))}
		for _, slot := range team.Slots {
			sd := slotDTO{Index: slot.Index, Reserved: slot.Reserved, Mine: slot.Mine, DisplayName: slot.DisplayName}
			if slot.Reserved && !slot.ReservedAt.IsZero() {
				at := slot.ReservedAt.UTC()
				sd.ReservedAt = &at
			}
			td.Slots = append(td.Slots, sd)
		}
		dto.Teams = append(dto.Teams, td)
	}
	if view.Current != nil {
		current := toReservationDTO(*view.Current)
		dto.Reservation = &current
	}
	return dto
}
