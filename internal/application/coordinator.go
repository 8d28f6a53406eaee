package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/example/slot-reservations/internal/persistence"
)

// Coordinator performs reserve and release against a reconciled view.
type Coordinator struct {
	stores Stores
	opts   Options
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(stores Stores, opts Options) *Coordinator {
	return &Coordinator{stores: stores, opts: opts.withDefaults()}
}

// Reserve claims slot index in team for the view's user. The slot is claimed
// first and the pointer second; a lost pointer race rolls the slot claim back.
// On success the view is updated in place.
func (c *Coordinator) Reserve(ctx context.Context, view *View, team string, index int) (reservation Reservation, err error) {
	if c == nil {
		return Reservation{}, fmt.Errorf("Coordinator is nil")
	}
	if view == nil {
		return Reservation{}, fmt.Errorf("view is required")
	}

	started := c.opts.Now()
	ctx, span := c.opts.startSpan(ctx, "Coordinator.Reserve", view,
		attribute.String("reservation.team", team),
		attribute.Int("reservation.slot_index", index),
	)
	logger := serviceLogger(ctx, c.opts.Logger, "Coordinator", "Reserve",
		"user_id", view.UserID,
		"session_id", view.Session.Key,
		"team", team,
		"slot_index", index,
	)
	defer func() {
		c.opts.finish(ctx, span, "reserve", started, err)
		if err != nil {
			logFailure(ctx, logger, "failed to reserve slot", err)
			return
		}
		logger.InfoContext(ctx, "slot reserved")
	}()

	if !view.Consistent {
		return Reservation{}, &StoreError{Op: "reserve", Err: errViewInconsistent}
	}
	if current := view.Current; current != nil {
		return Reservation{}, &AlreadyReservedError{SessionID: current.SessionID, Team: current.Team, SlotIndex: current.SlotIndex}
	}

	teamView := view.team(team)
	if teamView == nil {
		return Reservation{}, fmt.Errorf("%w: unknown team %q", ErrInvalidSlot, team)
	}
	if index < 0 || index >= teamView.Capacity {
		return Reservation{}, fmt.Errorf("%w: %s has %d slots, got index %d", ErrInvalidSlot, team, teamView.Capacity, index)
	}
	if teamView.Slots[index].Reserved {
		return Reservation{}, ErrSlotTaken
	}

	pointerKey := c.opts.Scope.Key(view.UserID, view.Session.Key)
	existing, err := c.stores.Pointers.GetPointer(ctx, pointerKey)
	switch {
	case err == nil:
		if existing.SessionID == view.Session.Key {
			view.markStale()
		}
		return Reservation{}, &AlreadyReservedError{SessionID: existing.SessionID, Team: existing.Team, SlotIndex: existing.SlotIndex}
	case !errors.Is(err, persistence.ErrNotFound):
		return Reservation{}, &StoreError{Op: "get pointer", Err: err}
	}

	now := c.opts.Now()
	occupant := &persistence.Occupant{UserID: view.UserID, DisplayName: view.DisplayName, ReservedAt: now}
	slotKey := persistence.SlotKey{SessionID: view.Session.Key, Team: team, Index: index}

	if err = c.stores.Slots.SwapSlot(ctx, slotKey, nil, occupant); err != nil {
		view.markStale()
		if errors.Is(err, persistence.ErrConditionFailed) {
			return Reservation{}, ErrSlotTaken
		}
		return Reservation{}, &StoreError{Op: "claim slot", Err: err}
	}

	pointer := &persistence.Pointer{
		SessionID:    view.Session.Key,
		Team:         team,
		SlotIndex:    index,
		SessionLabel: view.Session.Event,
		DisplayName:  view.DisplayName,
		ReservedAt:   now,
	}
	if err = c.stores.Pointers.SwapPointer(ctx, pointerKey, nil, pointer); err != nil {
		view.markStale()
		if !errors.Is(err, persistence.ErrConditionFailed) {
			return Reservation{}, &StoreError{Op: "write pointer", Err: err}
		}
		return Reservation{}, c.rollbackClaim(ctx, logger, slotKey, occupant, pointerKey)
	}

	teamView.Slots[index] = SlotView{
		Index:       index,
		Reserved:    true,
		Mine:        true,
		UserID:      view.UserID,
		DisplayName: view.DisplayName,
		ReservedAt:  now,
	}
	teamView.Occupied++
	view.Current = &Reservation{SessionID: view.Session.Key, Team: team, SlotIndex: index, ReservedAt: now}
	view.Pointer = pointer

	c.opts.Events.Publish(ctx, SlotEvent{
		Type:        SlotReserved,
		SessionID:   view.Session.Key,
		Team:        team,
		SlotIndex:   index,
		DisplayName: view.DisplayName,
		At:          now,
	})
	return *view.Current, nil
}

// rollbackClaim undoes a slot claim after another reservation won the
// pointer and reports that reservation to the caller.
func (c *Coordinator) rollbackClaim(ctx context.Context, logger *slog.Logger, slotKey persistence.SlotKey, occupant *persistence.Occupant, pointerKey persistence.PointerKey) error {
	if err := c.stores.Slots.SwapSlot(ctx, slotKey, occupant, nil); err != nil {
		logger.WarnContext(ctx, "failed to roll back slot claim", "error", err)
	}

	blocking := &AlreadyReservedError{}
	if winner, err := c.stores.Pointers.GetPointer(ctx, pointerKey); err == nil {
		blocking.SessionID = winner.SessionID
		blocking.Team = winner.Team
		blocking.SlotIndex = winner.SlotIndex
	}
	return blocking
}

// Release frees the view user's reservation. A slot that no longer records the
// user and an absent pointer are both treated as already released.
func (c *Coordinator) Release(ctx context.Context, view *View) (err error) {
	if c == nil {
		return fmt.Errorf("Coordinator is nil")
	}
	if view == nil {
		return fmt.Errorf("view is required")
	}

	started := c.opts.Now()
	ctx, span := c.opts.startSpan(ctx, "Coordinator.Release", view)
	logger := serviceLogger(ctx, c.opts.Logger, "Coordinator", "Release",
		"user_id", view.UserID,
		"session_id", view.Session.Key,
	)
	defer func() {
		c.opts.finish(ctx, span, "release", started, err)
		if err != nil {
			logFailure(ctx, logger, "failed to release slot", err)
			return
		}
		logger.InfoContext(ctx, "slot released")
	}()

	if !view.Consistent {
		return &StoreError{Op: "release", Err: errViewInconsistent}
	}
	current := view.Current
	if current == nil {
		return ErrNoReservation
	}

	slotKey := persistence.SlotKey{SessionID: current.SessionID, Team: current.Team, Index: current.SlotIndex}
	err = c.stores.Slots.SwapSlot(ctx, slotKey, &persistence.Occupant{UserID: view.UserID}, nil)
	switch {
	case errors.Is(err, persistence.ErrConditionFailed):
		logger.InfoContext(ctx, "slot no longer held, treating as released")
		err = nil
	case err != nil:
		view.markStale()
		return &StoreError{Op: "clear slot", Err: err}
	}

	expected := &persistence.Pointer{SessionID: current.SessionID, Team: current.Team, SlotIndex: current.SlotIndex}
	pointerKey := c.opts.Scope.Key(view.UserID, view.Session.Key)
	pointerErr := c.stores.Pointers.SwapPointer(ctx, pointerKey, expected, nil)
	if errors.Is(pointerErr, persistence.ErrConditionFailed) {
		logger.InfoContext(ctx, "pointer already cleared or moved")
		pointerErr = nil
	}

	c.applyRelease(ctx, view, *current)
	if pointerErr != nil {
		view.markStale()
		return &StoreError{Op: "clear pointer", Err: pointerErr}
	}
	return nil
}

func (c *Coordinator) applyRelease(ctx context.Context, view *View, current Reservation) {
	if teamView := view.team(current.Team); teamView != nil && current.SlotIndex < len(teamView.Slots) {
		if teamView.Slots[current.SlotIndex].Reserved {
			teamView.Occupied--
		}
		teamView.Slots[current.SlotIndex] = SlotView{Index: current.SlotIndex}
	}
	view.Current = nil
	view.Pointer = nil

	c.opts.Events.Publish(ctx, SlotEvent{
		Type:      SlotReleased,
		SessionID: current.SessionID,
		Team:      current.Team,
		SlotIndex: current.SlotIndex,
		At:        c.opts.Now(),
	})
}
