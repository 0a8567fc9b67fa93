// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/danielhkuo/dental-viewer/models"
	"github.com/danielhkuo/dental-viewer/store"
)

const userColumns = `id, username, email, password_hash, role, profile, preferences, is_active, last_login, created_at, updated_at`

func scanUser(row scanner) (models.User, error) {
	var (
		u           models.User
		profile     string
		preferences string
		lastLogin   sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role,
		&profile, &preferences, &u.IsActive, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return models.User{}, err
	}
	if err := decodeJSON(profile, &u.Profile); err != nil {
		return models.User{}, err
	}
	if err := decodeJSON(preferences, &u.Preferences); err != nil {
		return models.User{}, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u models.User) error {
	profile, err := encodeJSON(u.Profile)
	if err != nil {
		return err
	}
	preferences, err := encodeJSON(u.Preferences)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO app_user (id, username, email, password_hash, role, profile, preferences, is_active, last_login, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, u.ID, u.Username, u.Email, u.PasswordHash, u.Role, profile, preferences, u.IsActive, u.LastLogin, u.CreatedAt.UTC(), u.UpdatedAt.UTC())
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM app_user WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, store.ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByLogin(ctx context.Context, login string) (models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM app_user WHERE username = $1 OR email = $1`, login))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, store.ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u models.User) error {
	profile, err := encodeJSON(u.Profile)
	if err != nil {
		return err
	}
	preferences, err := encodeJSON(u.Preferences)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_user
		SET email = $1, role = $2, profile = $3, preferences = $4, is_active = $5, last_login = $6, updated_at = $7
		WHERE id = $8
	`, u.Email, u.Role, profile, preferences, u.IsActive, u.LastLogin, u.UpdatedAt.UTC(), u.ID)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SaveRefreshToken(ctx context.Context, t models.RefreshToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_token (token, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`, t.Token, t.UserID, t.CreatedAt.UTC(), t.ExpiresAt.UTC())
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert refresh token: %w", err)
	}
	return nil
}

func (s *Store) ConsumeRefreshToken(ctx context.Context, token string, now time.Time) (models.RefreshToken, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	t := models.RefreshToken{Token: token}
	err = tx.QueryRowContext(ctx, `
		SELECT user_id, created_at, expires_at FROM refresh_token WHERE token = $1
	`, token).Scan(&t.UserID, &t.CreatedAt, &t.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RefreshToken{}, store.ErrNotFound
	}
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("failed to query refresh token: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM refresh_token WHERE token = $1`, token)
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("failed to delete refresh token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.RefreshToken{}, store.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return models.RefreshToken{}, fmt.Errorf("failed to commit: %w", err)
	}

	if !t.ExpiresAt.After(now) {
		return models.RefreshToken{}, store.ErrNotFound
	}
	return t, nil
}

func (s *Store) DeleteRefreshToken(ctx context.Context, userID, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_token WHERE token = $1 AND user_id = $2`, token, userID)
	if err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteRefreshTokens(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM refresh_token WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete refresh tokens: %w", err)
	}
	return nil
}
