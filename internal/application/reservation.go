package application

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/slot-reservations/internal/persistence"
	"github.com/example/slot-reservations/internal/roster"
)

const (
	tracerName       = "github.com/example/slot-reservations/internal/application"
	guestDisplayName = "Guest"
)

// Stores groups the store contracts used by reservation operations.
type Stores struct {
	Slots    persistence.SlotStore
	Pointers persistence.PointerStore
	Profiles persistence.ProfileStore
}

// Options carries the optional collaborators of the Reconciler and Coordinator.
type Options struct {
	Scope   PointerScope
	Now     func() time.Time
	Logger  *slog.Logger
	Events  EventPublisher
	Metrics MetricsRecorder
	Tracer  trace.Tracer
}

func (o Options) withDefaults() Options {
	if o.Scope == "" {
		o.Scope = PointerScopeUser
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	o.Logger = defaultLogger(o.Logger)
	if o.Events == nil {
		o.Events = nopPublisher{}
	}
	if o.Metrics == nil {
		o.Metrics = nopRecorder{}
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer(tracerName)
	}
	return o
}

func (o Options) startSpan(ctx context.Context, name string, view *View, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if view != nil {
		attrs = append(attrs,
			attribute.String("reservation.session_id", view.Session.Key),
			attribute.String("reservation.user_id", view.UserID),
		)
	}
	return o.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// finish ends the span and records the operation outcome.
func (o Options) finish(ctx context.Context, span trace.Span, operation string, started time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = ErrorKind(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.SetAttributes(attribute.String("reservation.outcome", outcome))
	span.End()
	o.Metrics.RecordOperation(ctx, operation, outcome, o.Now().Sub(started))
}

// logFailure logs rejections the user can act on at warn level and everything else at error level.
func logFailure(ctx context.Context, logger *slog.Logger, msg string, err error) {
	level := slog.LevelWarn
	if Retryable(err) || ErrorKind(err) == "unexpected" {
		level = slog.LevelError
	}
	logger.Log(ctx, level, msg, "error", err, "error_kind", ErrorKind(err))
}

func resolveDisplayName(profile *persistence.Profile, principal Principal) string {
	if profile != nil {
		if name := strings.TrimSpace(profile.Name); name != "" {
			return name
		}
	}
	if name := strings.TrimSpace(principal.DisplayName); name != "" {
		return name
	}
	return guestDisplayName
}

func pointerFor(details SessionDetails, candidate roster.Candidate) persistence.Pointer {
	return persistence.Pointer{
		SessionID:    details.Key,
		Team:         candidate.Team,
		SlotIndex:    candidate.SlotIndex,
		SessionLabel: details.Event,
		DisplayName:  candidate.Occupant.DisplayName,
		ReservedAt:   candidate.Occupant.ReservedAt,
	}
}

func buildView(details SessionDetails, userID, displayName string, grid []roster.TeamSlots, primary *roster.Candidate, pointer *persistence.Pointer, consistent bool, loadedAt time.Time) *View {
	teams := make([]TeamView, 0, len(grid))
	for _, team := range grid {
		tv := TeamView{Name: team.Name, Capacity: len(team.Slots), Slots: make([]SlotView, len(team.Slots))}
		for index, occupant := range team.Slots {
			slot := SlotView{Index: index}
			if occupant != nil {
				slot.Reserved = true
				slot.Mine = occupant.UserID == userID
				slot.UserID = occupant.UserID
				slot.DisplayName = occupant.DisplayName
				slot.ReservedAt = occupant.ReservedAt
				tv.Occupied++
			}
			tv.Slots[index] = slot
		}
		teams = append(teams, tv)
	}

	view := &View{
		Session:     details,
		UserID:      userID,
		DisplayName: displayName,
		Teams:       teams,
		Pointer:     pointer,
		Consistent:  consistent,
		LoadedAt:    loadedAt,
	}
	if primary != nil {
		view.Current = &Reservation{
			SessionID:  details.Key,
			Team:       primary.Team,
			SlotIndex:  primary.SlotIndex,
			ReservedAt: primary.Occupant.ReservedAt,
		}
	}
	return view
}
