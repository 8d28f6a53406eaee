package roster

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidLayout reports team data that cannot be normalised.
var ErrInvalidLayout = errors.New("roster: invalid team layout")

type rawEntry struct {
	key   string
	value json.RawMessage
}

type teamObject struct {
	Name      string          `json:"name"`
	SlotCount *int            `json:"slotCount"`
	Capacity  *int            `json:"capacity"`
	Slots     json.RawMessage `json:"slots"`
}

// NormalizeTeams turns the loosely structured team data of a session into an
// ordered layout. Both object-shaped data (team name to team) and array-shaped
// data (list of named teams) are accepted. Missing data yields DefaultTeams.
func NormalizeTeams(raw []byte, defaultCapacity int) ([]TeamLayout, error) {
	if defaultCapacity <= 0 {
		defaultCapacity = DefaultSlotCapacity
	}
	if defaultCapacity > MaxSlotCapacity {
		return nil, fmt.Errorf("%w: default capacity %d exceeds %d", ErrInvalidLayout, defaultCapacity, MaxSlotCapacity)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return DefaultTeams(defaultCapacity), nil
	}

	var (
		teams []TeamLayout
		err   error
	)
	switch trimmed[0] {
	case '{':
		teams, err = normalizeObject(trimmed, defaultCapacity)
	case '[':
		teams, err = normalizeArray(trimmed, defaultCapacity)
	default:
		return nil, fmt.Errorf("%w: teams must be an object or an array", ErrInvalidLayout)
	}
	if err != nil {
		return nil, err
	}
	if len(teams) == 0 {
		return DefaultTeams(defaultCapacity), nil
	}
	return teams, nil
}

func normalizeObject(data []byte, defaultCapacity int) ([]TeamLayout, error) {
	entries, err := decodeOrderedObject(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}

	builder := newLayoutBuilder(len(entries))
	for _, entry := range entries {
		capacity, err := teamCapacity(entry.value, defaultCapacity)
		if err != nil {
			return nil, fmt.Errorf("%w: team %q: %v", ErrInvalidLayout, entry.key, err)
		}
		if err := builder.add(entry.key, capacity); err != nil {
			return nil, err
		}
	}
	return builder.teams, nil
}

func normalizeArray(data []byte, defaultCapacity int) ([]TeamLayout, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}

	builder := newLayoutBuilder(len(items))
	for i, item := range items {
		var obj teamObject
		if err := json.Unmarshal(item, &obj); err != nil {
			return nil, fmt.Errorf("%w: team #%d: %v", ErrInvalidLayout, i, err)
		}
		capacity, err := objectCapacity(obj, defaultCapacity)
		if err != nil {
			return nil, fmt.Errorf("%w: team #%d: %v", ErrInvalidLayout, i, err)
		}
		if err := builder.add(obj.Name, capacity); err != nil {
			return nil, err
		}
	}
	return builder.teams, nil
}

type layoutBuilder struct {
	teams []TeamLayout
	seen  map[string]struct{}
}

func newLayoutBuilder(size int) *layoutBuilder {
	return &layoutBuilder{teams: make([]TeamLayout, 0, size), seen: make(map[string]struct{}, size)}
}

func (b *layoutBuilder) add(name string, capacity int) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: team name is required", ErrInvalidLayout)
	}
	if capacity > MaxSlotCapacity {
		return fmt.Errorf("%w: team %q capacity %d exceeds %d", ErrInvalidLayout, name, capacity, MaxSlotCapacity)
	}
	if _, dup := b.seen[name]; dup {
		return fmt.Errorf("%w: duplicate team %q", ErrInvalidLayout, name)
	}
	b.seen[name] = struct{}{}
	b.teams = append(b.teams, TeamLayout{Name: name, Capacity: capacity})
	return nil
}

func teamCapacity(raw json.RawMessage, defaultCapacity int) (int, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return defaultCapacity, nil
	}

	switch trimmed[0] {
	case '{':
		var obj teamObject
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return 0, err
		}
		return objectCapacity(obj, defaultCapacity)
	case '[':
		// A bare slot array.
		return objectCapacity(teamObject{Slots: trimmed}, defaultCapacity)
	default:
		var n int
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return 0, fmt.Errorf("capacity must be an integer")
		}
		return declaredOrDefault(n, defaultCapacity)
	}
}

func objectCapacity(obj teamObject, defaultCapacity int) (int, error) {
	for _, declared := range []*int{obj.SlotCount, obj.Capacity} {
		if declared == nil {
			continue
		}
		if *declared < 0 {
			return 0, fmt.Errorf("capacity must not be negative")
		}
		if *declared > 0 {
			return *declared, nil
		}
	}
	return slotsCapacity(obj.Slots, defaultCapacity)
}

func slotsCapacity(raw json.RawMessage, defaultCapacity int) (int, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return defaultCapacity, nil
	}

	switch trimmed[0] {
	case '[':
		var slots []json.RawMessage
		if err := json.Unmarshal(trimmed, &slots); err != nil {
			return 0, err
		}
		if len(slots) == 0 {
			return defaultCapacity, nil
		}
		return len(slots), nil
	case '{':
		var keyed map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &keyed); err != nil {
			return 0, err
		}
		capacity := defaultCapacity
		for key := range keyed {
			index, err := strconv.Atoi(key)
			if err != nil || index < 0 {
				return 0, fmt.Errorf("slot key %q is not an index", key)
			}
			if index >= MaxSlotCapacity {
				return 0, fmt.Errorf("slot key %q exceeds %d slots", key, MaxSlotCapacity)
			}
			if index+1 > capacity {
				capacity = index + 1
			}
		}
		return capacity, nil
	default:
		return 0, fmt.Errorf("slots must be an array or an object")
	}
}

func declaredOrDefault(n, defaultCapacity int) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("capacity must not be negative")
	}
	if n == 0 {
		return defaultCapacity, nil
	}
	return n, nil
}

// decodeOrderedObject reads a JSON object keeping the declaration order of its keys.
func decodeOrderedObject(data []byte) ([]rawEntry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object")
	}

	var entries []rawEntry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key")
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		entries = append(entries, rawEntry{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return entries, nil
}
