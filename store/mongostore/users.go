// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/danielhkuo/dental-viewer/models"
	"github.com/danielhkuo/dental-viewer/store"
)

func (s *Store) CreateUser(ctx context.Context, u models.User) error {
	_, err := s.users.InsertOne(ctx, u)
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (models.User, error) {
	var u models.User
	err := s.users.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, store.ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *Store) GetUserByLogin(ctx context.Context, login string) (models.User, error) {
	return s.findUser(ctx, bson.M{"$or": bson.A{
		bson.M{"username": login},
		bson.M{"email": login},
	}})
}

func (s *Store) UpdateUser(ctx context.Context, u models.User) error {
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": u.ID}, bson.M{"$set": bson.M{
		"email":       u.Email,
		"role":        u.Role,
		"profile":     u.Profile,
		"preferences": u.Preferences,
		"isActive":    u.IsActive,
		"lastLogin":   u.LastLogin,
		"updatedAt":   u.UpdatedAt,
	}})
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SaveRefreshToken(ctx context.Context, t models.RefreshToken) error {
	_, err := s.tokens.InsertOne(ctx, t)
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert refresh token: %w", err)
	}
	return nil
}

// ConsumeRefreshToken relies on FindOneAndDelete so two concurrent refreshes
// cannot both win. The TTL monitor runs about once a minute, so expiry is
// checked here as well.
func (s *Store) ConsumeRefreshToken(ctx context.Context, token string, now time.Time) (models.RefreshToken, error) {
	var t models.RefreshToken
	err := s.tokens.FindOneAndDelete(ctx, bson.M{"_id": token}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.RefreshToken{}, store.ErrNotFound
	}
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("failed to consume refresh token: %w", err)
	}
	if !t.ExpiresAt.After(now) {
		return models.RefreshToken{}, store.ErrNotFound
	}
	return t, nil
}

func (s *Store) DeleteRefreshToken(ctx context.Context, userID, token string) error {
	res, err := s.tokens.DeleteOne(ctx, bson.M{"_id": token, "userId": userID})
	if err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteRefreshTokens(ctx context.Context, userID string) error {
	if _, err := s.tokens.DeleteMany(ctx, bson.M{"userId": userID}); err != nil {
		return fmt.Errorf("failed to delete refresh tokens: %w", err)
	}
	return nil
}
