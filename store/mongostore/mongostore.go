// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package mongostore

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/danielhkuo/dental-viewer/store"
)

// Collection names
const (
	UsersCollection         = "users"
	RefreshTokensCollection = "refresh_tokens"
	ViewerStatesCollection  = "viewer_states"
	AnnotationsCollection   = "annotations"
)

// Store implements store.Store on MongoDB
type Store struct {
	client       *mongo.Client
	users        *mongo.Collection
	tokens       *mongo.Collection
	viewerStates *mongo.Collection
	annotations  *mongo.Collection
	now          func() time.Time
}

var _ store.Store = (*Store)(nil)

// Connect dials uri, verifies the connection and ensures indexes
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	// Decode free-form sub-documents (tool config, measurement data) as maps
	// so they serialize back to JSON objects
	reg := bson.NewRegistry()
	reg.RegisterTypeMapEntry(bson.TypeEmbeddedDocument, reflect.TypeOf(bson.M{}))

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetRegistry(reg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping failed: %w", err)
	}

	s := New(client, database)
	if err := s.EnsureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client:       client,
		users:        db.Collection(UsersCollection),
		tokens:       db.Collection(RefreshTokensCollection),
		viewerStates: db.Collection(ViewerStatesCollection),
		annotations:  db.Collection(AnnotationsCollection),
		now:          time.Now,
	}
}

// SetClock replaces the time source; used by tests
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the unique keys, lookup indexes and the refresh
// token TTL index. Safe to call repeatedly.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	specs := []struct {
		coll   *mongo.Collection
		models []mongo.IndexModel
	}{
		{s.users, []mongo.IndexModel{
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{s.tokens, []mongo.IndexModel{
			{Keys: bson.D{{Key: "userId", Value: 1}}},
			{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		}},
		{s.viewerStates, []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "studyInstanceUID", Value: 1}, {Key: "sessionId", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "updatedAt", Value: -1}}},
		}},
		{s.annotations, []mongo.IndexModel{
			{Keys: bson.D{{Key: "userId", Value: 1}}},
			{Keys: bson.D{{Key: "studyInstanceUID", Value: 1}}},
			{Keys: bson.D{{Key: "tooth.system", Value: 1}, {Key: "tooth.value", Value: 1}}},
			{Keys: bson.D{{Key: "sharedWith.userId", Value: 1}}},
			{
				Keys: bson.D{{Key: "audio.filename", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"audio.filename": bson.M{"$exists": true}}),
			},
		}},
	}

	for _, ix := range specs {
		if _, err := ix.coll.Indexes().CreateMany(ctx, ix.models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", ix.coll.Name(), err)
		}
	}
	return nil
}
