package testfixtures

import (
	"context"
	"testing"
	"time"

	"github.com/example/slot-reservations/internal/persistence"
)

func TestReservationHarnessReserveFlow(t *testing.T) {
	factory := NewServiceFactory()
	harness := factory.NewReservationHarness(t, ReservationDeps{})
	session := harness.SeedSession(t, NewSessionFixture())
	user := harness.NewUser(t, "Profile Name")

	if user.UserID != "user-1" {
		t.Fatalf("expected generated ID user-1, got %q", user.UserID)
	}

	view := harness.Load(t, user, session.ID)
	if view.DisplayName != "Profile Name" {
		t.Fatalf("expected profile display name, got %q", view.DisplayName)
	}

	reservation, err := harness.Coordinator.Reserve(context.Background(), view, "Team A", 1)
	if err != nil {
		t.Fatalf("Reserve returned error: %v", err)
	}
	if !reservation.ReservedAt.Equal(factory.Clock.Now()) {
		t.Fatalf("expected timestamp %v, got %v", factory.Clock.Now(), reservation.ReservedAt)
	}

	slots := harness.Slots(t, session.ID)
	if slots[persistence.SlotKey{SessionID: session.ID, Team: "Team A", Index: 1}] != user.UserID {
		t.Fatalf("slot not recorded in store: %v", slots)
	}
}

func TestSQLiteHarnessOpensMigratedStore(t *testing.T) {
	harness := NewSQLiteHarness(t)
	session := NewSessionFixture(WithSessionTeams(""), WithSessionCreatedAt(ReferenceTime().Add(time.Hour)))

	if err := harness.Store.PutSession(context.Background(), session.Persistence()); err != nil {
		t.Fatalf("PutSession returned error: %v", err)
	}
	got, err := harness.Store.GetSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	if got.Event != session.Event || len(got.Teams) != 0 {
		t.Fatalf("unexpected session: %+v", got)
	}
}
