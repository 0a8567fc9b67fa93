// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/danielhkuo/dental-viewer/models"
	"github.com/danielhkuo/dental-viewer/store"
)

var newestFirst = bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: -1}}

func (s *Store) SaveViewerState(ctx context.Context, vs *models.ViewerState, expectedVersion *int) error {
	now := s.now().UTC()
	key := bson.M{"userId": vs.UserID, "studyInstanceUID": vs.StudyInstanceUID, "sessionId": vs.SessionID}

	var existing struct {
		ID        string    `bson:"_id"`
		Version   int       `bson:"version"`
		CreatedAt time.Time `bson:"createdAt"`
	}
	err := s.viewerStates.FindOne(ctx, key).Decode(&existing)

	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		if expectedVersion != nil && *expectedVersion != 0 {
			return store.ErrConflict
		}
		doc := *vs
		doc.ID = uuid.NewString()
		doc.Version = 1
		doc.CreatedAt = now
		doc.UpdatedAt = now
		_, err := s.viewerStates.InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrConflict
		}
		if err != nil {
			return fmt.Errorf("failed to insert viewer state: %w", err)
		}
		*vs = doc

	case err != nil:
		return fmt.Errorf("failed to query viewer state: %w", err)

	default:
		if expectedVersion != nil && *expectedVersion != existing.Version {
			return store.ErrConflict
		}
		res, err := s.viewerStates.UpdateOne(ctx,
			bson.M{"_id": existing.ID, "version": existing.Version},
			bson.M{
				"$set": bson.M{
					"studyInfo":        vs.StudyInfo,
					"viewportState":    vs.ViewportState,
					"toolState":        vs.ToolState,
					"measurementState": vs.MeasurementState,
					"dentalState":      vs.DentalState,
					"isAutoSave":       vs.IsAutoSave,
					"updatedAt":        now,
				},
				"$inc": bson.M{"version": 1},
			})
		if err != nil {
			return fmt.Errorf("failed to update viewer state: %w", err)
		}
		if res.MatchedCount == 0 {
			return store.ErrConflict
		}
		vs.ID = existing.ID
		vs.Version = existing.Version + 1
		vs.CreatedAt = existing.CreatedAt
		vs.UpdatedAt = now
	}

	return s.prune(ctx, vs.UserID, vs.StudyInstanceUID, vs.ID)
}

// prune keeps the MaxStatesPerStudy most recently updated states of the
// study; keep always survives
func (s *Store) prune(ctx context.Context, userID, studyUID, keep string) error {
	cur, err := s.viewerStates.Find(ctx,
		bson.M{"userId": userID, "studyInstanceUID": studyUID, "_id": bson.M{"$ne": keep}},
		options.Find().SetSort(newestFirst).SetProjection(bson.M{"_id": 1}).SetSkip(store.MaxStatesPerStudy-1),
	)
	if err != nil {
		return fmt.Errorf("failed to list viewer states: %w", err)
	}
	var stale []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &stale); err != nil {
		return fmt.Errorf("failed to decode viewer states: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	ids := make(bson.A, len(stale))
	for i, doc := range stale {
		ids[i] = doc.ID
	}
	if _, err := s.viewerStates.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
		return fmt.Errorf("failed to prune viewer states: %w", err)
	}
	return nil
}

func (s *Store) GetViewerState(ctx context.Context, userID, studyUID, sessionID string) (models.ViewerState, error) {
	filter := bson.M{"userId": userID, "studyInstanceUID": studyUID}
	if sessionID != "" {
		filter["sessionId"] = sessionID
	}

	var vs models.ViewerState
	err := s.viewerStates.FindOne(ctx, filter, options.FindOne().SetSort(newestFirst)).Decode(&vs)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.ViewerState{}, store.ErrNotFound
	}
	if err != nil {
		return models.ViewerState{}, fmt.Errorf("failed to query viewer state: %w", err)
	}
	return vs, nil
}

func (s *Store) ListViewerStates(ctx context.Context, userID, studyUID string, limit int) ([]models.ViewerState, error) {
	filter := bson.M{"userId": userID}
	if studyUID != "" {
		filter["studyInstanceUID"] = studyUID
	}
	opts := options.Find().SetSort(newestFirst)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.viewerStates.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query viewer states: %w", err)
	}
	states := []models.ViewerState{}
	if err := cur.All(ctx, &states); err != nil {
		return nil, fmt.Errorf("failed to decode viewer states: %w", err)
	}
	return states, nil
}

func (s *Store) DeleteViewerState(ctx context.Context, userID, id string) error {
	res, err := s.viewerStates.DeleteOne(ctx, bson.M{"_id": id, "userId": userID})
	if err != nil {
		return fmt.Errorf("failed to delete viewer state: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// recentStudiesPipeline groups a user's states by study, newest first
func recentStudiesPipeline(userID string, limit int) mongo.Pipeline {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"userId": userID}}},
		{{Key: "$sort", Value: newestFirst}},
		{{Key: "$group", Value: bson.M{
			"_id":          "$studyInstanceUID",
			"studyInfo":    bson.M{"$first": "$studyInfo"},
			"lastAccessed": bson.M{"$first": "$updatedAt"},
			"sessionCount": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "lastAccessed", Value: -1}, {Key: "_id", Value: 1}}}},
	}
	if limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: limit}})
	}
	return pipeline
}

func (s *Store) RecentStudies(ctx context.Context, userID string, limit int) ([]models.RecentStudy, error) {
	cur, err := s.viewerStates.Aggregate(ctx, recentStudiesPipeline(userID, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate recent studies: %w", err)
	}
	studies := []models.RecentStudy{}
	if err := cur.All(ctx, &studies); err != nil {
		return nil, fmt.Errorf("failed to decode recent studies: %w", err)
	}
	return studies, nil
}
