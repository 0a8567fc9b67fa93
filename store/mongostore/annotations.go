// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/danielhkuo/dental-viewer/models"
	"github.com/danielhkuo/dental-viewer/store"
)

// normalize keeps empty lists as arrays on both sides of the wire
func normalize(a *models.Annotation) {
	if a.Tags == nil {
		a.Tags = []string{}
	}
	if a.SharedWith == nil {
		a.SharedWith = []models.Share{}
	}
}

func (s *Store) CreateAnnotation(ctx context.Context, a models.Annotation) error {
	normalize(&a)
	_, err := s.annotations.InsertOne(ctx, a)
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert annotation: %w", err)
	}
	return nil
}

func (s *Store) findAnnotation(ctx context.Context, filter bson.M) (models.Annotation, error) {
	var a models.Annotation
	err := s.annotations.FindOne(ctx, filter).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Annotation{}, store.ErrNotFound
	}
	if err != nil {
		return models.Annotation{}, fmt.Errorf("failed to query annotation: %w", err)
	}
	normalize(&a)
	return a, nil
}

func (s *Store) GetAnnotation(ctx context.Context, id string) (models.Annotation, error) {
	return s.findAnnotation(ctx, bson.M{"_id": id})
}

func (s *Store) GetAnnotationByAudio(ctx context.Context, filename string) (models.Annotation, error) {
	return s.findAnnotation(ctx, bson.M{"audio.filename": filename})
}

func (s *Store) UpdateAnnotation(ctx context.Context, a models.Annotation) error {
	normalize(&a)
	res, err := s.annotations.ReplaceOne(ctx, bson.M{"_id": a.ID}, a)
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to update annotation: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAnnotation(ctx context.Context, id string) error {
	res, err := s.annotations.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete annotation: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AnnotationQuery translates a filter into a query document. Pagination is
// not part of it.
func AnnotationQuery(f store.AnnotationFilter) bson.M {
	q := bson.M{
		"$or": bson.A{
			bson.M{"userId": f.ViewerID},
			bson.M{"isPrivate": false, "sharedWith.userId": f.ViewerID},
		},
	}
	if f.StudyInstanceUID != "" {
		q["studyInstanceUID"] = f.StudyInstanceUID
	}
	if f.ToothSystem != "" {
		q["tooth.system"] = f.ToothSystem
	}
	if f.ToothValue != "" {
		q["tooth.value"] = f.ToothValue
	}
	if f.Category != "" {
		q["category"] = f.Category
	}
	if f.Status != "" {
		q["status"] = f.Status
	}
	if f.Priority != "" {
		q["priority"] = f.Priority
	}
	if len(f.Tags) > 0 {
		q["tags"] = bson.M{"$in": f.Tags}
	}
	if f.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		// $or is taken by visibility
		q["$and"] = bson.A{bson.M{"$or": bson.A{
			bson.M{"title": pattern},
			bson.M{"content": pattern},
		}}}
	}
	return q
}

func (s *Store) ListAnnotations(ctx context.Context, f store.AnnotationFilter) ([]models.Annotation, int, error) {
	q := AnnotationQuery(f)

	total, err := s.annotations.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count annotations: %w", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit)).SetSkip(int64(f.Offset()))
	}
	cur, err := s.annotations.Find(ctx, q, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query annotations: %w", err)
	}
	annotations := []models.Annotation{}
	if err := cur.All(ctx, &annotations); err != nil {
		return nil, 0, fmt.Errorf("failed to decode annotations: %w", err)
	}
	for i := range annotations {
		normalize(&annotations[i])
	}
	return annotations, int(total), nil
}

type countBucket struct {
	Key   string `bson:"_id"`
	Count int    `bson:"count"`
}

func groupCount(field string) bson.A {
	return bson.A{bson.M{"$group": bson.M{"_id": "$" + field, "count": bson.M{"$sum": 1}}}}
}

// statsPipeline counts the viewer's visible annotations of a study in one
// round trip
func statsPipeline(viewerID, studyUID string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: AnnotationQuery(store.AnnotationFilter{ViewerID: viewerID, StudyInstanceUID: studyUID})}},
		{{Key: "$facet", Value: bson.M{
			"total":      bson.A{bson.M{"$count": "count"}},
			"withAudio":  bson.A{bson.M{"$match": bson.M{"audio.filename": bson.M{"$exists": true}}}, bson.M{"$count": "count"}},
			"byCategory": groupCount("category"),
			"byStatus":   groupCount("status"),
			"byPriority": groupCount("priority"),
		}}},
	}
}

func (s *Store) AnnotationStats(ctx context.Context, viewerID, studyUID string) (models.AnnotationStats, error) {
	cur, err := s.annotations.Aggregate(ctx, statsPipeline(viewerID, studyUID))
	if err != nil {
		return models.AnnotationStats{}, fmt.Errorf("failed to aggregate annotation stats: %w", err)
	}
	var facets []struct {
		Total      []countBucket `bson:"total"`
		WithAudio  []countBucket `bson:"withAudio"`
		ByCategory []countBucket `bson:"byCategory"`
		ByStatus   []countBucket `bson:"byStatus"`
		ByPriority []countBucket `bson:"byPriority"`
	}
	if err := cur.All(ctx, &facets); err != nil {
		return models.AnnotationStats{}, fmt.Errorf("failed to decode annotation stats: %w", err)
	}

	stats := store.NewStats(studyUID)
	if len(facets) == 0 {
		return stats, nil
	}
	f := facets[0]
	if len(f.Total) > 0 {
		stats.Total = f.Total[0].Count
	}
	if len(f.WithAudio) > 0 {
		stats.WithAudio = f.WithAudio[0].Count
	}
	for _, b := range f.ByCategory {
		stats.ByCategory[b.Key] = b.Count
	}
	for _, b := range f.ByStatus {
		stats.ByStatus[b.Key] = b.Count
	}
	for _, b := range f.ByPriority {
		stats.ByPriority[b.Key] = b.Count
	}
	return stats, nil
}
