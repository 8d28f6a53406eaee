// Package redisstore implements the persistence contracts on Redis. Slot and
// pointer writes run as Lua scripts so the comparison and the write happen in
// one atomic step on the server.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/slot-reservations/internal/persistence"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "reservations"

// swapSlotScript compares the owner recorded for a slot field before writing.
// KEYS: slot data hash, slot owner hash. ARGV: field, expected owner ("" for
// empty), next owner ("" to delete), next occupant JSON.
var swapSlotScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[2], ARGV[1])
if ARGV[2] == '' then
	if current then return 0 end
elseif current ~= ARGV[2] then
	return 0
end
if ARGV[3] == '' then
	redis.call('HDEL', KEYS[1], ARGV[1])
	redis.call('HDEL', KEYS[2], ARGV[1])
else
	redis.call('HSET', KEYS[1], ARGV[1], ARGV[4])
	redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
end
return 1
`)

// swapPointerScript compares the slot fingerprint of a pointer before writing.
// KEYS: pointer hash. ARGV: expected fingerprint ("" for absent), next
// fingerprint ("" to delete), next pointer JSON.
var swapPointerScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'fp')
if ARGV[1] == '' then
	if current then return 0 end
elseif current ~= ARGV[1] then
	return 0
end
if ARGV[2] == '' then
	redis.call('DEL', KEYS[1])
else
	redis.call('HSET', KEYS[1], 'fp', ARGV[2], 'data', ARGV[3])
end
return 1
`)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store implements persistence.Store on Redis.
type Store struct {
	client *redis.Client
	prefix string
}

var _ persistence.Store = (*Store)(nil)

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, config Config) (*Store, error) {
	addr := strings.TrimPrefix(config.Addr, "redis://")
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return New(client, config.Prefix), nil
}

// New wraps an existing client.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping reports whether Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Key helpers
func (s *Store) sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, id)
}

func (s *Store) sessionIndexKey() string {
	return s.prefix + ":sessions"
}

func (s *Store) slotsKey(sessionID string) string {
	return fmt.Sprintf("%s:slots:%s", s.prefix, sessionID)
}

func (s *Store) slotOwnersKey(sessionID string) string {
	return fmt.Sprintf("%s:slot-owners:%s", s.prefix, sessionID)
}

func (s *Store) pointerKey(key persistence.PointerKey) string {
	if key.SessionID == "" {
		return fmt.Sprintf("%s:pointer:%s", s.prefix, key.UserID)
	}
	return fmt.Sprintf("%s:pointer:%s:session:%s", s.prefix, key.UserID, key.SessionID)
}

func (s *Store) profileKey(userID string) string {
	return fmt.Sprintf("%s:profile:%s", s.prefix, userID)
}

// slotField encodes a slot position as "<index>|<team>".
func slotField(team string, index int) string {
	return strconv.Itoa(index) + "|" + team
}

func parseSlotField(field string) (string, int, error) {
	indexPart, team, ok := strings.Cut(field, "|")
	if !ok {
		return "", 0, fmt.Errorf("redis: malformed slot field %q", field)
	}
	index, err := strconv.Atoi(indexPart)
	if err != nil {
		return "", 0, fmt.Errorf("redis: malformed slot field %q", field)
	}
	return team, index, nil
}

func fingerprint(p *persistence.Pointer) string {
	if p == nil {
		return ""
	}
	return p.SessionID + "\x1f" + p.Team + "\x1f" + strconv.Itoa(p.SlotIndex)
}

type sessionDoc struct {
	ID        string          `json:"id"`
	Event     string          `json:"event,omitempty"`
	Date      string          `json:"date,omitempty"`
	Time      string          `json:"time,omitempty"`
	Status    string          `json:"status,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	Teams     json.RawMessage `json:"teams,omitempty"`
}

type occupantDoc struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	ReservedAt  time.Time `json:"reservedAt"`
}

type pointerDoc struct {
	SessionID    string    `json:"sessionId"`
	Team         string    `json:"team"`
	SlotIndex    int       `json:"slotIndex"`
	SessionLabel string    `json:"sessionLabel"`
	DisplayName  string    `json:"displayName"`
	ReservedAt   time.Time `json:"reservedAt"`
}

type profileDoc struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// PutSession inserts or replaces a catalog entry.
func (s *Store) PutSession(ctx context.Context, session persistence.Session) error {
	data, err := json.Marshal(sessionDoc{
		ID:        session.ID,
		Event:     session.Event,
		Date:      session.Date,
		Time:      session.Time,
		Status:    session.Status,
		CreatedAt: session.CreatedAt,
		Teams:     session.Teams,
	})
	if err != nil {
		return fmt.Errorf("redis: encode session %s: %w", session.ID, err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.sessionKey(session.ID), data, 0)
		pipe.SAdd(ctx, s.sessionIndexKey(), session.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: put session %s: %w", session.ID, err)
	}
	return nil
}

// ListSessions returns every indexed session ordered by ID.
func (s *Store) ListSessions(ctx context.Context) ([]persistence.Session, error) {
	ids, err := s.client.SMembers(ctx, s.sessionIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list sessions: %w", err)
	}
	sort.Strings(ids)

	sessions := make([]persistence.Session, 0, len(ids))
	for _, id := range ids {
		session, err := s.GetSession(ctx, id)
		if errors.Is(err, persistence.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// GetSession retrieves a session by key.
func (s *Store) GetSession(ctx context.Context, id string) (persistence.Session, error) {
	data, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if err == redis.Nil {
		return persistence.Session{}, persistence.ErrNotFound
	}
	if err != nil {
		return persistence.Session{}, fmt.Errorf("redis: get session %s: %w", id, err)
	}
	var doc sessionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return persistence.Session{}, fmt.Errorf("redis: decode session %s: %w", id, err)
	}
	return persistence.Session{
		ID:        id,
		Event:     doc.Event,
		Date:      doc.Date,
		Time:      doc.Time,
		Status:    doc.Status,
		CreatedAt: doc.CreatedAt,
		Teams:     doc.Teams,
	}, nil
}

// ListSlots returns the reserved slots of a session.
func (s *Store) ListSlots(ctx context.Context, sessionID string) ([]persistence.SlotRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.slotsKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list slots %s: %w", sessionID, err)
	}

	records := make([]persistence.SlotRecord, 0, len(fields))
	for field, value := range fields {
		team, index, err := parseSlotField(field)
		if err != nil {
			return nil, err
		}
		var doc occupantDoc
		if err := json.Unmarshal([]byte(value), &doc); err != nil {
			return nil, fmt.Errorf("redis: decode slot %s: %w", field, err)
		}
		records = append(records, persistence.SlotRecord{
			Key: persistence.SlotKey{SessionID: sessionID, Team: team, Index: index},
			Occupant: persistence.Occupant{
				UserID:      doc.UserID,
				DisplayName: doc.DisplayName,
				ReservedAt:  doc.ReservedAt,
			},
		})
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Key.Team == records[j].Key.Team {
			return records[i].Key.Index < records[j].Key.Index
		}
		return records[i].Key.Team < records[j].Key.Team
	})
	return records, nil
}

// SwapSlot conditionally replaces the occupant of a slot.
func (s *Store) SwapSlot(ctx context.Context, key persistence.SlotKey, expected, next *persistence.Occupant) error {
	var expectedOwner, nextOwner, payload string
	if expected != nil {
		expectedOwner = expected.UserID
	}
	if next != nil {
		data, err := json.Marshal(occupantDoc{UserID: next.UserID, DisplayName: next.DisplayName, ReservedAt: next.ReservedAt})
		if err != nil {
			return fmt.Errorf("redis: encode occupant: %w", err)
		}
		nextOwner, payload = next.UserID, string(data)
	}

	applied, err := swapSlotScript.Run(ctx, s.client,
		[]string{s.slotsKey(key.SessionID), s.slotOwnersKey(key.SessionID)},
		slotField(key.Team, key.Index), expectedOwner, nextOwner, payload,
	).Int()
	if err != nil {
		return fmt.Errorf("redis: swap slot %s/%s/%d: %w", key.SessionID, key.Team, key.Index, err)
	}
	if applied == 0 {
		return persistence.ErrConditionFailed
	}
	return nil
}

// GetPointer retrieves the pointer stored under key.
func (s *Store) GetPointer(ctx context.Context, key persistence.PointerKey) (persistence.Pointer, error) {
	data, err := s.client.HGet(ctx, s.pointerKey(key), "data").Bytes()
	if err == redis.Nil {
		return persistence.Pointer{}, persistence.ErrNotFound
	}
	if err != nil {
		return persistence.Pointer{}, fmt.Errorf("redis: get pointer %s: %w", key.UserID, err)
	}
	var doc pointerDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return persistence.Pointer{}, fmt.Errorf("redis: decode pointer %s: %w", key.UserID, err)
	}
	return persistence.Pointer{
		SessionID:    doc.SessionID,
		Team:         doc.Team,
		SlotIndex:    doc.SlotIndex,
		SessionLabel: doc.SessionLabel,
		DisplayName:  doc.DisplayName,
		ReservedAt:   doc.ReservedAt,
	}, nil
}

// SwapPointer conditionally replaces the pointer stored under key.
func (s *Store) SwapPointer(ctx context.Context, key persistence.PointerKey, expected, next *persistence.Pointer) error {
	var payload string
	if next != nil {
		data, err := json.Marshal(pointerDoc{
			SessionID:    next.SessionID,
			Team:         next.Team,
			SlotIndex:    next.SlotIndex,
			SessionLabel: next.SessionLabel,
			DisplayName:  next.DisplayName,
			ReservedAt:   next.ReservedAt,
		})
		if err != nil {
			return fmt.Errorf("redis: encode pointer: %w", err)
		}
		payload = string(data)
	}

	applied, err := swapPointerScript.Run(ctx, s.client,
		[]string{s.pointerKey(key)},
		fingerprint(expected), fingerprint(next), payload,
	).Int()
	if err != nil {
		return fmt.Errorf("redis: swap pointer %s: %w", key.UserID, err)
	}
	if applied == 0 {
		return persistence.ErrConditionFailed
	}
	return nil
}

// PutProfile inserts or replaces a profile.
func (s *Store) PutProfile(ctx context.Context, profile persistence.Profile) error {
	data, err := json.Marshal(profileDoc{Name: profile.Name, Email: profile.Email})
	if err != nil {
		return fmt.Errorf("redis: encode profile: %w", err)
	}
	if err := s.client.Set(ctx, s.profileKey(profile.UserID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis: put profile %s: %w", profile.UserID, err)
	}
	return nil
}

// GetProfile retrieves a profile by user ID.
func (s *Store) GetProfile(ctx context.Context, userID string) (persistence.Profile, error) {
	data, err := s.client.Get(ctx, s.profileKey(userID)).Bytes()
	if err == redis.Nil {
		return persistence.Profile{}, persistence.ErrNotFound
	}
	if err != nil {
		return persistence.Profile{}, fmt.Errorf("redis: get profile %s: %w", userID, err)
	}
	var doc profileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return persistence.Profile{}, fmt.Errorf("redis: decode profile %s: %w", userID, err)
	}
	return persistence.Profile{UserID: userID, Name: doc.Name, Email: doc.Email}, nil
}
