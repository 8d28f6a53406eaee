package roster

// Candidate is a slot that records the user as its occupant.
type Candidate struct {
	Team      string
	TeamOrder int
	SlotIndex int
	Occupant  Occupant
}

// Ref converts the candidate into a pointer reference within the session.
func (c Candidate) Ref(sessionID string) PointerRef {
	return PointerRef{SessionID: sessionID, Team: c.Team, SlotIndex: c.SlotIndex}
}

// PointerAction is the repair applied to a user's reservation pointer.
type PointerAction int

const (
	// PointerKeep leaves the pointer as it is.
	PointerKeep PointerAction = iota
	// PointerCreate writes a pointer where none exists.
	PointerCreate
	// PointerOverwrite replaces a pointer that references another slot.
	PointerOverwrite
	// PointerDelete removes a pointer whose slot no longer records the user.
	PointerDelete
)

func (a PointerAction) String() string {
	switch a {
	case PointerKeep:
		return "keep"
	case PointerCreate:
		return "create"
	case PointerOverwrite:
		return "overwrite"
	case PointerDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Plan lists the repairs needed to bring one user's slots and pointer in line.
type Plan struct {
	Primary  *Candidate
	Removals []Candidate
	Pointer  PointerAction
}

// Changes reports whether applying the plan writes anything.
func (p Plan) Changes() bool {
	return len(p.Removals) > 0 || p.Pointer != PointerKeep
}

// ScanCandidates walks teams in declaration order and slots in index order,
// collecting every slot occupied by userID.
func ScanCandidates(teams []TeamSlots, userID string) []Candidate {
	if userID == "" {
		return nil
	}
	var candidates []Candidate
	for order, team := range teams {
		for index, occupant := range team.Slots {
			if occupant == nil || occupant.UserID != userID {
				continue
			}
			candidates = append(candidates, Candidate{
				Team:      team.Name,
				TeamOrder: order,
				SlotIndex: index,
				Occupant:  *occupant,
			})
		}
	}
	return candidates
}

// ResolveDuplicates keeps the first candidate in scan order and returns the
// rest for removal.
func ResolveDuplicates(candidates []Candidate) (*Candidate, []Candidate) {
	if len(candidates) == 0 {
		return nil, nil
	}
	primary := candidates[0]
	var removals []Candidate
	if len(candidates) > 1 {
		removals = append(removals, candidates[1:]...)
	}
	return &primary, removals
}

// DecidePointer chooses the pointer repair for a session given the surviving
// candidate and the pointer that was read. A pointer naming another session is
// only replaced when the user actually holds a slot here.
func DecidePointer(sessionID string, primary *Candidate, current *PointerRef) PointerAction {
	switch {
	case current == nil && primary == nil:
		return PointerKeep
	case current == nil:
		return PointerCreate
	case current.SessionID != sessionID && primary == nil:
		return PointerKeep
	case current.SessionID != sessionID:
		return PointerOverwrite
	case primary == nil:
		return PointerDelete
	case current.SameSlot(primary.Ref(sessionID)):
		return PointerKeep
	default:
		return PointerOverwrite
	}
}

// PlanReconciliation combines the scan, duplicate resolution and pointer decision.
func PlanReconciliation(sessionID string, teams []TeamSlots, userID string, current *PointerRef) Plan {
	primary, removals := ResolveDuplicates(ScanCandidates(teams, userID))
	return Plan{
		Primary:  primary,
		Removals: removals,
		Pointer:  DecidePointer(sessionID, primary, current),
	}
}
