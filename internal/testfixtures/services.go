package testfixtures

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/example/slot-reservations/internal/application"
	"github.com/example/slot-reservations/internal/persistence"
	"github.com/example/slot-reservations/internal/persistence/memory"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("user"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("user")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// ReservationDeps captures the optional collaborators of a ReservationHarness.
type ReservationDeps struct {
	Store           persistence.Store
	Scope           application.PointerScope
	Events          application.EventPublisher
	Metrics         application.MetricsRecorder
	DefaultCapacity int
	CacheTTL        time.Duration
	Logger          *slog.Logger
}

// ReservationHarness wires the session service, reconciler and coordinator
// over a single store.
type ReservationHarness struct {
	Store       persistence.Store
	Clock       *Clock
	Sessions    *application.SessionService
	Reconciler  *application.Reconciler
	Coordinator *application.Coordinator

	ids *IDGenerator
}

// NewReservationHarness builds the reservation services. When deps.Store is
// nil an in-memory store is used.
func (f *ServiceFactory) NewReservationHarness(tb testing.TB, deps ReservationDeps) *ReservationHarness {
	tb.Helper()

	store := deps.Store
	if store == nil {
		store = memory.Open()
		tb.Cleanup(func() { _ = store.Close() })
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	sessions := application.NewSessionServiceWithLogger(store, deps.DefaultCapacity, deps.CacheTTL, f.Clock.NowFunc(), logger)
	stores := application.Stores{Slots: store, Pointers: store, Profiles: store}
	opts := application.Options{
		Scope:   deps.Scope,
		Now:     f.Clock.NowFunc(),
		Logger:  logger,
		Events:  deps.Events,
		Metrics: deps.Metrics,
	}
	return &ReservationHarness{
		Store:       store,
		Clock:       f.Clock,
		Sessions:    sessions,
		Reconciler:  application.NewReconciler(sessions, stores, opts),
		Coordinator: application.NewCoordinator(stores, opts),
		ids:         f.IDGenerator,
	}
}

// SeedSession stores the session fixture in the catalog.
func (h *ReservationHarness) SeedSession(tb testing.TB, fixture SessionFixture) SessionFixture {
	tb.Helper()
	if err := h.Store.PutSession(context.Background(), fixture.Persistence()); err != nil {
		tb.Fatalf("failed to seed session %s: %v", fixture.ID, err)
	}
	return fixture
}

// NewUser returns a principal with a generated identifier. When profileName is
// not empty a matching profile is stored.
func (h *ReservationHarness) NewUser(tb testing.TB, profileName string) application.Principal {
	tb.Helper()
	id := h.ids.Next()
	user := NewUserFixture(WithUserID(id), WithUserDisplayName("Identity "+id), WithUserProfileName(profileName))
	if profileName != "" {
		if err := h.Store.PutProfile(context.Background(), user.Profile()); err != nil {
			tb.Fatalf("failed to seed profile %s: %v", id, err)
		}
	}
	return user.Principal()
}

// Occupy writes an occupant directly into a slot, bypassing the coordinator.
func (h *ReservationHarness) Occupy(tb testing.TB, sessionID, team string, index int, userID string) {
	tb.Helper()
	occupant := &persistence.Occupant{UserID: userID, DisplayName: userID, ReservedAt: h.Clock.Now()}
	key := persistence.SlotKey{SessionID: sessionID, Team: team, Index: index}
	if err := h.Store.SwapSlot(context.Background(), key, nil, occupant); err != nil {
		tb.Fatalf("failed to occupy %s/%s/%d: %v", sessionID, team, index, err)
	}
}

// PlacePointer writes a pointer directly, bypassing the coordinator.
func (h *ReservationHarness) PlacePointer(tb testing.TB, key persistence.PointerKey, pointer persistence.Pointer) {
	tb.Helper()
	if err := h.Store.SwapPointer(context.Background(), key, nil, &pointer); err != nil {
		tb.Fatalf("failed to place pointer for %s: %v", key.UserID, err)
	}
}

// Load reconciles the session for principal and fails the test on error.
func (h *ReservationHarness) Load(tb testing.TB, principal application.Principal, sessionID string) *application.View {
	tb.Helper()
	view, err := h.Reconciler.Reconcile(context.Background(), principal, sessionID)
	if err != nil {
		tb.Fatalf("Reconcile(%s, %s) returned error: %v", principal.UserID, sessionID, err)
	}
	return view
}

// Slots returns the stored occupants of a session keyed by team and index.
func (h *ReservationHarness) Slots(tb testing.TB, sessionID string) map[persistence.SlotKey]string {
	tb.Helper()
	records, err := h.Store.ListSlots(context.Background(), sessionID)
	if err != nil {
		tb.Fatalf("ListSlots(%s) returned error: %v", sessionID, err)
	}
	out := make(map[persistence.SlotKey]string, len(records))
	for _, record := range records {
		out[record.Key] = record.Occupant.UserID
	}
	return out
}
