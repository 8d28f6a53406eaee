package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/example/slot-reservations/internal/persistence"
	"github.com/example/slot-reservations/internal/roster"
)

// Reconciler restores the one-slot-per-user and pointer agreement rules for a
// user entering a session view.
type Reconciler struct {
	sessions *SessionService
	stores   Stores
	opts     Options
}

// NewReconciler constructs a Reconciler.
func NewReconciler(sessions *SessionService, stores Stores, opts Options) *Reconciler {
	return &Reconciler{sessions: sessions, stores: stores, opts: opts.withDefaults()}
}

// Reconcile loads the session for principal, removes duplicate occupancies,
// repairs the reservation pointer and returns the resulting view. Repairs that
// fail leave the view marked inconsistent instead of failing the load.
func (r *Reconciler) Reconcile(ctx context.Context, principal Principal, sessionID string) (view *View, err error) {
	if r == nil {
		err = fmt.Errorf("Reconciler is nil")
		return
	}

	started := r.opts.Now()
	key := roster.SessionKey(sessionID)
	ctx, span := r.opts.startSpan(ctx, "Reconciler.Reconcile", nil,
		attribute.String("reservation.session_id", key),
		attribute.String("reservation.user_id", principal.UserID),
	)
	logger := serviceLogger(ctx, r.opts.Logger, "Reconciler", "Reconcile",
		"user_id", principal.UserID,
		"session_id", key,
	)
	defer func() {
		r.opts.finish(ctx, span, "reconcile", started, err)
		if err != nil {
			logFailure(ctx, logger, "failed to reconcile session", err)
			return
		}
		if view == nil {
			return
		}
		logger.InfoContext(ctx, "session reconciled",
			"consistent", view.Consistent,
			"reserved", view.Current != nil,
		)
	}()

	if strings.TrimSpace(principal.UserID) == "" {
		err = fmt.Errorf("principal user id is required")
		return
	}

	var details SessionDetails
	details, err = r.sessions.GetSessionDetails(ctx, sessionID)
	if err != nil {
		return
	}
	pointerKey := r.opts.Scope.Key(principal.UserID, details.Key)

	var (
		records []persistence.SlotRecord
		pointer *persistence.Pointer
		profile *persistence.Profile
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		loaded, loadErr := r.stores.Slots.ListSlots(groupCtx, details.Key)
		if loadErr != nil {
			return &StoreError{Op: "list slots", Err: loadErr}
		}
		records = loaded
		return nil
	})
	group.Go(func() error {
		loaded, loadErr := r.stores.Pointers.GetPointer(groupCtx, pointerKey)
		if errors.Is(loadErr, persistence.ErrNotFound) {
			return nil
		}
		if loadErr != nil {
			return &StoreError{Op: "get pointer", Err: loadErr}
		}
		pointer = &loaded
		return nil
	})
	if r.stores.Profiles != nil {
		group.Go(func() error {
			loaded, loadErr := r.stores.Profiles.GetProfile(groupCtx, principal.UserID)
			switch {
			case loadErr == nil:
				profile = &loaded
			case !errors.Is(loadErr, persistence.ErrNotFound):
				logger.WarnContext(ctx, "profile lookup failed, using identity display name", "error", loadErr)
			}
			return nil
		})
	}
	if err = group.Wait(); err != nil {
		return
	}

	grid := placeRecords(ctx, logger, details.Teams, records)

	var current *roster.PointerRef
	if pointer != nil {
		current = &roster.PointerRef{SessionID: pointer.SessionID, Team: pointer.Team, SlotIndex: pointer.SlotIndex}
	}
	plan := roster.PlanReconciliation(details.Key, grid, principal.UserID, current)

	consistent := r.removeDuplicates(ctx, logger, details.Key, principal.UserID, grid, plan.Removals)
	pointer, repaired := r.repairPointer(ctx, logger, details, pointerKey, plan, pointer)
	consistent = consistent && repaired

	view = buildView(details, principal.UserID, resolveDisplayName(profile, principal), grid, plan.Primary, pointer, consistent, r.opts.Now())
	return view, nil
}

// placeRecords fills an empty grid with stored occupants. Records that fall
// outside the layout are ignored.
func placeRecords(ctx context.Context, logger *slog.Logger, layout []roster.TeamLayout, records []persistence.SlotRecord) []roster.TeamSlots {
	grid := roster.EmptyGrid(layout)
	order := make(map[string]int, len(grid))
	for i, team := range grid {
		order[team.Name] = i
	}

	for _, record := range records {
		i, ok := order[record.Key.Team]
		if !ok || record.Key.Index < 0 || record.Key.Index >= len(grid[i].Slots) {
			logger.WarnContext(ctx, "ignoring slot outside the session layout",
				"team", record.Key.Team,
				"slot_index", record.Key.Index,
			)
			continue
		}
		grid[i].Slots[record.Key.Index] = &roster.Occupant{
			UserID:      record.Occupant.UserID,
			DisplayName: record.Occupant.DisplayName,
			ReservedAt:  record.Occupant.ReservedAt,
		}
	}
	return grid
}

func (r *Reconciler) removeDuplicates(ctx context.Context, logger *slog.Logger, sessionID, userID string, grid []roster.TeamSlots, removals []roster.Candidate) bool {
	ok := true
	for _, removal := range removals {
		key := persistence.SlotKey{SessionID: sessionID, Team: removal.Team, Index: removal.SlotIndex}
		err := r.stores.Slots.SwapSlot(ctx, key, &persistence.Occupant{UserID: userID}, nil)
		if err != nil {
			ok = false
			logger.WarnContext(ctx, "failed to remove duplicate reservation",
				"team", removal.Team,
				"slot_index", removal.SlotIndex,
				"error", err,
			)
			continue
		}

		grid[removal.TeamOrder].Slots[removal.SlotIndex] = nil
		logger.InfoContext(ctx, "duplicate reservation removed",
			"team", removal.Team,
			"slot_index", removal.SlotIndex,
		)
		r.opts.Events.Publish(ctx, SlotEvent{
			Type:      SlotRepaired,
			SessionID: sessionID,
			Team:      removal.Team,
			SlotIndex: removal.SlotIndex,
			At:        r.opts.Now(),
		})
	}
	return ok
}

// repairPointer applies the planned pointer action with a conditional write
// against the pointer that was read. It returns the pointer now believed to be
// stored and whether the repair succeeded.
func (r *Reconciler) repairPointer(ctx context.Context, logger *slog.Logger, details SessionDetails, key persistence.PointerKey, plan roster.Plan, read *persistence.Pointer) (*persistence.Pointer, bool) {
	var next *persistence.Pointer
	switch plan.Pointer {
	case roster.PointerKeep:
		return read, true
	case roster.PointerCreate, roster.PointerOverwrite:
		p := pointerFor(details, *plan.Primary)
		next = &p
	case roster.PointerDelete:
	}

	if err := r.stores.Pointers.SwapPointer(ctx, key, read, next); err != nil {
		logger.WarnContext(ctx, "failed to repair reservation pointer",
			"action", plan.Pointer.String(),
			"error", err,
		)
		return read, false
	}

	logger.InfoContext(ctx, "reservation pointer repaired", "action", plan.Pointer.String())
	return next, true
}
