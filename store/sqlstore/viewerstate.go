// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/danielhkuo/dental-viewer/models"
	"github.com/danielhkuo/dental-viewer/store"
)

const viewerStateColumns = `id, user_id, study_instance_uid, session_id, version, study_info, viewport_state, tool_state, measurement_state, dental_state, is_auto_save, created_at, updated_at`

type statePayload struct {
	studyInfo, viewport, tool, measurement, dental string
}

func encodeState(vs *models.ViewerState) (statePayload, error) {
	var (
		p   statePayload
		err error
	)
	if p.studyInfo, err = encodeJSON(vs.StudyInfo); err != nil {
		return p, err
	}
	if p.viewport, err = encodeJSON(vs.ViewportState); err != nil {
		return p, err
	}
	if p.tool, err = encodeJSON(vs.ToolState); err != nil {
		return p, err
	}
	if p.measurement, err = encodeJSON(vs.MeasurementState); err != nil {
		return p, err
	}
	if p.dental, err = encodeJSON(vs.DentalState); err != nil {
		return p, err
	}
	return p, nil
}

func scanViewerState(row scanner) (models.ViewerState, error) {
	var (
		vs models.ViewerState
		p  statePayload
	)
	err := row.Scan(&vs.ID, &vs.UserID, &vs.StudyInstanceUID, &vs.SessionID, &vs.Version,
		&p.studyInfo, &p.viewport, &p.tool, &p.measurement, &p.dental,
		&vs.IsAutoSave, &vs.CreatedAt, &vs.UpdatedAt)
	if err != nil {
		return models.ViewerState{}, err
	}
	for _, col := range []struct {
		raw string
		dst any
	}{
		{p.studyInfo, &vs.StudyInfo},
		{p.viewport, &vs.ViewportState},
		{p.tool, &vs.ToolState},
		{p.measurement, &vs.MeasurementState},
		{p.dental, &vs.DentalState},
	} {
		if err := decodeJSON(col.raw, col.dst); err != nil {
			return models.ViewerState{}, err
		}
	}
	return vs, nil
}

// newestFirst orders by updated_at descending, id as tie breaker
func newestFirst(states []models.ViewerState) {
	sort.SliceStable(states, func(i, j int) bool {
		if !states[i].UpdatedAt.Equal(states[j].UpdatedAt) {
			return states[i].UpdatedAt.After(states[j].UpdatedAt)
		}
		return states[i].ID > states[j].ID
	})
}

func (s *Store) SaveViewerState(ctx context.Context, vs *models.ViewerState, expectedVersion *int) error {
	now := s.timestamp()
	p, err := encodeState(vs)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	var (
		id        string
		current   int
		createdAt time.Time
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, version, created_at FROM viewer_state
		WHERE user_id = $1 AND study_instance_uid = $2 AND session_id = $3
	`, vs.UserID, vs.StudyInstanceUID, vs.SessionID).Scan(&id, &current, &createdAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if expectedVersion != nil && *expectedVersion != 0 {
			return store.ErrConflict
		}
		id = uuid.NewString()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO viewer_state (`+viewerStateColumns+`)
			VALUES ($1, $2, $3, $4, 1, $5, $6, $7, $8, $9, $10, $11, $12)
		`, id, vs.UserID, vs.StudyInstanceUID, vs.SessionID,
			p.studyInfo, p.viewport, p.tool, p.measurement, p.dental,
			vs.IsAutoSave, now, now)
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		if err != nil {
			return fmt.Errorf("failed to insert viewer state: %w", err)
		}
		vs.Version = 1
		createdAt = now

	case err != nil:
		return fmt.Errorf("failed to query viewer state: %w", err)

	default:
		if expectedVersion != nil && *expectedVersion != current {
			return store.ErrConflict
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE viewer_state
			SET version = version + 1, study_info = $1, viewport_state = $2, tool_state = $3,
			    measurement_state = $4, dental_state = $5, is_auto_save = $6, updated_at = $7
			WHERE id = $8 AND version = $9
		`, p.studyInfo, p.viewport, p.tool, p.measurement, p.dental, vs.IsAutoSave, now, id, current)
		if err != nil {
			return fmt.Errorf("failed to update viewer state: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrConflict
		}
		vs.Version = current + 1
	}

	if err := prune(ctx, tx, vs.UserID, vs.StudyInstanceUID, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit viewer state: %w", err)
	}

	vs.ID = id
	vs.CreatedAt = createdAt
	vs.UpdatedAt = now
	return nil
}

// prune deletes all but the MaxStatesPerStudy most recently updated states
// of the study. keep is the state just written and always survives.
func prune(ctx context.Context, tx *sql.Tx, userID, studyUID, keep string) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, updated_at FROM viewer_state WHERE user_id = $1 AND study_instance_uid = $2
	`, userID, studyUID)
	if err != nil {
		return fmt.Errorf("failed to list viewer states: %w", err)
	}
	var others []models.ViewerState
	for rows.Next() {
		var vs models.ViewerState
		if err := rows.Scan(&vs.ID, &vs.UpdatedAt); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan viewer state: %w", err)
		}
		if vs.ID != keep {
			others = append(others, vs)
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(others) < store.MaxStatesPerStudy {
		return nil
	}
	newestFirst(others)
	for _, vs := range others[store.MaxStatesPerStudy-1:] {
		if _, err := tx.ExecContext(ctx, `DELETE FROM viewer_state WHERE id = $1`, vs.ID); err != nil {
			return fmt.Errorf("failed to prune viewer state: %w", err)
		}
	}
	return nil
}

func (s *Store) queryViewerStates(ctx context.Context, query string, args ...any) ([]models.ViewerState, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query viewer states: %w", err)
	}
	defer rows.Close()

	states := []models.ViewerState{}
	for rows.Next() {
		vs, err := scanViewerState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan viewer state: %w", err)
		}
		states = append(states, vs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	newestFirst(states)
	return states, nil
}

func (s *Store) GetViewerState(ctx context.Context, userID, studyUID, sessionID string) (models.ViewerState, error) {
	var (
		states []models.ViewerState
		err    error
	)
	if sessionID != "" {
		states, err = s.queryViewerStates(ctx, `
			SELECT `+viewerStateColumns+` FROM viewer_state
			WHERE user_id = $1 AND study_instance_uid = $2 AND session_id = $3
		`, userID, studyUID, sessionID)
	} else {
		states, err = s.queryViewerStates(ctx, `
			SELECT `+viewerStateColumns+` FROM viewer_state
			WHERE user_id = $1 AND study_instance_uid = $2
		`, userID, studyUID)
	}
	if err != nil {
		return models.ViewerState{}, err
	}
	if len(states) == 0 {
		return models.ViewerState{}, store.ErrNotFound
	}
	return states[0], nil
}

func (s *Store) ListViewerStates(ctx context.Context, userID, studyUID string, limit int) ([]models.ViewerState, error) {
	var (
		states []models.ViewerState
		err    error
	)
	if studyUID != "" {
		states, err = s.queryViewerStates(ctx, `
			SELECT `+viewerStateColumns+` FROM viewer_state WHERE user_id = $1 AND study_instance_uid = $2
		`, userID, studyUID)
	} else {
		states, err = s.queryViewerStates(ctx, `
			SELECT `+viewerStateColumns+` FROM viewer_state WHERE user_id = $1
		`, userID)
	}
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(states) > limit {
		states = states[:limit]
	}
	return states, nil
}

func (s *Store) DeleteViewerState(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM viewer_state WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete viewer state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) RecentStudies(ctx context.Context, userID string, limit int) ([]models.RecentStudy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, study_instance_uid, study_info, updated_at FROM viewer_state WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent studies: %w", err)
	}
	defer rows.Close()

	var states []models.ViewerState
	for rows.Next() {
		var (
			vs        models.ViewerState
			studyInfo string
		)
		if err := rows.Scan(&vs.ID, &vs.StudyInstanceUID, &studyInfo, &vs.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan viewer state: %w", err)
		}
		if err := decodeJSON(studyInfo, &vs.StudyInfo); err != nil {
			return nil, err
		}
		states = append(states, vs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	newestFirst(states)
	return store.GroupRecentStudies(states, limit), nil
}
