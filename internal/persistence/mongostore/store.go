// Package mongostore implements the persistence contracts on MongoDB. Slot and
// pointer documents use their position as _id, so inserts race on the unique
// index and guarded updates filter on the expected owner.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/slot-reservations/internal/persistence"
)

// DefaultDatabase is used when Config.Database is empty.
const DefaultDatabase = "reservations"

// Config holds MongoDB connection settings.
type Config struct {
	URI      string
	Database string
}

// Store implements persistence.Store on MongoDB.
type Store struct {
	client   *mongo.Client
	sessions *mongo.Collection
	slots    *mongo.Collection
	pointers *mongo.Collection
	profiles *mongo.Collection
}

var _ persistence.Store = (*Store)(nil)

// Open connects, pings and ensures indexes.
func Open(ctx context.Context, config Config) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	database := config.Database
	if database == "" {
		database = DefaultDatabase
	}
	store := New(client, database)
	if err := store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return store, nil
}

// New wraps an existing client.
func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client:   client,
		sessions: db.Collection("sessions"),
		slots:    db.Collection("slots"),
		pointers: db.Collection("reservation_pointers"),
		profiles: db.Collection("profiles"),
	}
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.slots.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "user_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("mongo: create slot index: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Drop removes the store's database. Used to clean up test databases.
func (s *Store) Drop(ctx context.Context) error {
	return s.sessions.Database().Drop(ctx)
}

// Ping reports whether the deployment is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

type sessionDoc struct {
	ID        string    `bson:"_id"`
	Event     string    `bson:"event"`
	Date      string    `bson:"date"`
	Time      string    `bson:"time"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"created_at"`
	Teams     *string   `bson:"teams,omitempty"`
}

type slotDoc struct {
	ID          string    `bson:"_id"`
	SessionID   string    `bson:"session_id"`
	Team        string    `bson:"team"`
	SlotIndex   int       `bson:"slot_index"`
	UserID      string    `bson:"user_id"`
	DisplayName string    `bson:"display_name"`
	ReservedAt  time.Time `bson:"reserved_at"`
}

type pointerDoc struct {
	ID           string    `bson:"_id"`
	UserID       string    `bson:"user_id"`
	SessionID    string    `bson:"session_id"`
	Team         string    `bson:"team"`
	SlotIndex    int       `bson:"slot_index"`
	SessionLabel string    `bson:"session_label"`
	DisplayName  string    `bson:"display_name"`
	ReservedAt   time.Time `bson:"reserved_at"`
}

type profileDoc struct {
	ID    string `bson:"_id"`
	Name  string `bson:"name"`
	Email string `bson:"email"`
}

func slotID(key persistence.SlotKey) string {
	return key.SessionID + "\x1f" + key.Team + "\x1f" + strconv.Itoa(key.Index)
}

func pointerID(key persistence.PointerKey) string {
	return key.UserID + "\x1f" + key.SessionID
}

// PutSession inserts or replaces a catalog entry.
func (s *Store) PutSession(ctx context.Context, session persistence.Session) error {
	doc := sessionDoc{
		ID:        session.ID,
		Event:     session.Event,
		Date:      session.Date,
		Time:      session.Time,
		Status:    session.Status,
		CreatedAt: session.CreatedAt,
	}
	if len(session.Teams) > 0 {
		teams := string(session.Teams)
		doc.Teams = &teams
	}
	_, err := s.sessions.ReplaceOne(ctx, bson.M{"_id": session.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo: put session %s: %w", session.ID, err)
	}
	return nil
}

// ListSessions returns every session ordered by ID.
func (s *Store) ListSessions(ctx context.Context) ([]persistence.Session, error) {
	cursor, err := s.sessions.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo: list sessions: %w", err)
	}
	var docs []sessionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decode sessions: %w", err)
	}
	sessions := make([]persistence.Session, 0, len(docs))
	for _, doc := range docs {
		sessions = append(sessions, doc.model())
	}
	return sessions, nil
}

// GetSession retrieves a session by key.
func (s *Store) GetSession(ctx context.Context, id string) (persistence.Session, error) {
	var doc sessionDoc
	err := s.sessions.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return persistence.Session{}, persistence.ErrNotFound
	}
	if err != nil {
		return persistence.Session{}, fmt.Errorf("mongo: get session %s: %w", id, err)
	}
	return doc.model(), nil
}

func (d sessionDoc) model() persistence.Session {
	session := persistence.Session{
		ID:        d.ID,
		Event:     d.Event,
		Date:      d.Date,
		Time:      d.Time,
		Status:    d.Status,
		CreatedAt: d.CreatedAt,
	}
	if d.Teams != nil {
		session.Teams = []byte(*d.Teams)
	}
	return session
}

// ListSlots returns the reserved slots of a session.
func (s *Store) ListSlots(ctx context.Context, sessionID string) ([]persistence.SlotRecord, error) {
	cursor, err := s.slots.Find(ctx, bson.M{"session_id": sessionID},
		options.Find().SetSort(bson.D{{Key: "team", Value: 1}, {Key: "slot_index", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo: list slots %s: %w", sessionID, err)
	}
	var docs []slotDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decode slots %s: %w", sessionID, err)
	}

	records := make([]persistence.SlotRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, persistence.SlotRecord{
			Key: persistence.SlotKey{SessionID: doc.SessionID, Team: doc.Team, Index: doc.SlotIndex},
			Occupant: persistence.Occupant{
				UserID:      doc.UserID,
				DisplayName: doc.DisplayName,
				ReservedAt:  doc.ReservedAt,
			},
		})
	}
	return records, nil
}

// SwapSlot conditionally replaces the occupant of a slot.
func (s *Store) SwapSlot(ctx context.Context, key persistence.SlotKey, expected, next *persistence.Occupant) error {
	id := slotID(key)
	switch {
	case expected == nil && next == nil:
		return s.expectAbsent(ctx, s.slots, id)
	case expected == nil:
		_, err := s.slots.InsertOne(ctx, slotDoc{
			ID:          id,
			SessionID:   key.SessionID,
			Team:        key.Team,
			SlotIndex:   key.Index,
			UserID:      next.UserID,
			DisplayName: next.DisplayName,
			ReservedAt:  next.ReservedAt,
		})
		if mongo.IsDuplicateKeyError(err) {
			return persistence.ErrConditionFailed
		}
		if err != nil {
			return fmt.Errorf("mongo: insert slot %s: %w", id, err)
		}
		return nil
	case next == nil:
		result, err := s.slots.DeleteOne(ctx, bson.M{"_id": id, "user_id": expected.UserID})
		if err != nil {
			return fmt.Errorf("mongo: delete slot %s: %w", id, err)
		}
		if result.DeletedCount == 0 {
			return persistence.ErrConditionFailed
		}
		return nil
	default:
		result, err := s.slots.UpdateOne(ctx,
			bson.M{"_id": id, "user_id": expected.UserID},
			bson.M{"$set": bson.M{
				"user_id":      next.UserID,
				"display_name": next.DisplayName,
				"reserved_at":  next.ReservedAt,
			}},
		)
		if err != nil {
			return fmt.Errorf("mongo: update slot %s: %w", id, err)
		}
		if result.MatchedCount == 0 {
			return persistence.ErrConditionFailed
		}
		return nil
	}
}

// GetPointer retrieves the pointer stored under key.
func (s *Store) GetPointer(ctx context.Context, key persistence.PointerKey) (persistence.Pointer, error) {
	var doc pointerDoc
	err := s.pointers.FindOne(ctx, bson.M{"_id": pointerID(key)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return persistence.Pointer{}, persistence.ErrNotFound
	}
	if err != nil {
		return persistence.Pointer{}, fmt.Errorf("mongo: get pointer %s: %w", key.UserID, err)
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
	id := pointerID(key)
	switch {
	case expected == nil && next == nil:
		return s.expectAbsent(ctx, s.pointers, id)
	case expected == nil:
		_, err := s.pointers.InsertOne(ctx, pointerDoc{
			ID:           id,
			UserID:       key.UserID,
			SessionID:    next.SessionID,
			Team:         next.Team,
			SlotIndex:    next.SlotIndex,
			SessionLabel: next.SessionLabel,
			DisplayName:  next.DisplayName,
			ReservedAt:   next.ReservedAt,
		})
		if mongo.IsDuplicateKeyError(err) {
			return persistence.ErrConditionFailed
		}
		if err != nil {
			return fmt.Errorf("mongo: insert pointer %s: %w", key.UserID, err)
		}
		return nil
	}

	filter := bson.M{
		"_id":        id,
		"session_id": expected.SessionID,
		"team":       expected.Team,
		"slot_index": expected.SlotIndex,
	}
	if next == nil {
		result, err := s.pointers.DeleteOne(ctx, filter)
		if err != nil {
			return fmt.Errorf("mongo: delete pointer %s: %w", key.UserID, err)
		}
		if result.DeletedCount == 0 {
			return persistence.ErrConditionFailed
		}
		return nil
	}

	result, err := s.pointers.UpdateOne(ctx, filter, bson.M{"$set": bson.M{
		"session_id":    next.SessionID,
		"team":          next.Team,
		"slot_index":    next.SlotIndex,
		"session_label": next.SessionLabel,
		"display_name":  next.DisplayName,
		"reserved_at":   next.ReservedAt,
	}})
	if err != nil {
		return fmt.Errorf("mongo: update pointer %s: %w", key.UserID, err)
	}
	if result.MatchedCount == 0 {
		return persistence.ErrConditionFailed
	}
	return nil
}

func (s *Store) expectAbsent(ctx context.Context, collection *mongo.Collection, id string) error {
	count, err := collection.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("mongo: check %s: %w", id, err)
	}
	if count > 0 {
		return persistence.ErrConditionFailed
	}
	return nil
}

// PutProfile inserts or replaces a profile.
func (s *Store) PutProfile(ctx context.Context, profile persistence.Profile) error {
	doc := profileDoc{ID: profile.UserID, Name: profile.Name, Email: profile.Email}
	_, err := s.profiles.ReplaceOne(ctx, bson.M{"_id": profile.UserID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo: put profile %s: %w", profile.UserID, err)
	}
	return nil
}

// GetProfile retrieves a profile by user ID.
func (s *Store) GetProfile(ctx context.Context, userID string) (persistence.Profile, error) {
	var doc profileDoc
	err := s.profiles.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return persistence.Profile{}, persistence.ErrNotFound
	}
	if err != nil {
		return persistence.Profile{}, fmt.Errorf("mongo: get profile %s: %w", userID, err)
	}
	return persistence.Profile{UserID: doc.ID, Name: doc.Name, Email: doc.Email}, nil
}
