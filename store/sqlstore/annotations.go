// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/danielhkuo/dental-viewer/dental"
	"github.com/danielhkuo/dental-viewer/models"
	"github.com/danielhkuo/dental-viewer/store"
)

const annotationColumns = `a.id, a.user_id, a.study_instance_uid, a.series_instance_uid, a.sop_instance_uid, a.measurement_uid,
	a.tooth_system, a.tooth_value, a.title, a.content, a.category, a.status, a.priority, a.tags,
	a.audio_filename, a.audio_original_name, a.audio_mime_type, a.audio_size, a.audio_duration,
	a.is_private, a.created_at, a.updated_at`

// visibleTo restricts rows to annotations the viewer may read
const visibleTo = `(a.user_id = ? OR (NOT a.is_private AND EXISTS (
	SELECT 1 FROM annotation_share s WHERE s.annotation_id = a.id AND s.user_id = ?)))`

type annotationRow struct {
	toothSystem, toothValue         sql.NullString
	tags                            string
	audioFile, audioName, audioMime sql.NullString
	audioSize                       sql.NullInt64
	audioDuration                   sql.NullFloat64
}

func scanAnnotation(row scanner) (models.Annotation, error) {
	var (
		a models.Annotation
		r annotationRow
	)
	err := row.Scan(&a.ID, &a.UserID, &a.StudyInstanceUID, &a.SeriesInstanceUID, &a.SOPInstanceUID, &a.MeasurementUID,
		&r.toothSystem, &r.toothValue, &a.Title, &a.Content, &a.Category, &a.Status, &a.Priority, &r.tags,
		&r.audioFile, &r.audioName, &r.audioMime, &r.audioSize, &r.audioDuration,
		&a.IsPrivate, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return models.Annotation{}, err
	}

	if r.toothSystem.Valid && r.toothValue.Valid {
		a.Tooth = &dental.ToothSelection{System: dental.NumberingSystem(r.toothSystem.String), Value: r.toothValue.String}
	}
	a.Tags = []string{}
	if err := decodeJSON(r.tags, &a.Tags); err != nil {
		return models.Annotation{}, err
	}
	if r.audioFile.Valid {
		a.Audio = &models.AudioAttachment{
			Filename:        r.audioFile.String,
			OriginalName:    r.audioName.String,
			MimeType:        r.audioMime.String,
			Size:            r.audioSize.Int64,
			DurationSeconds: r.audioDuration.Float64,
		}
	}
	a.SharedWith = []models.Share{}
	return a, nil
}

// columnValues flattens the mutable columns in annotationColumns order,
// starting at tooth_system
func columnValues(a models.Annotation) ([]any, error) {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := encodeJSON(tags)
	if err != nil {
		return nil, err
	}

	var toothSystem, toothValue any
	if a.Tooth != nil {
		toothSystem, toothValue = string(a.Tooth.System), a.Tooth.Value
	}
	var audioFile, audioName, audioMime, audioSize, audioDuration any
	if a.Audio != nil {
		audioFile, audioName, audioMime = a.Audio.Filename, a.Audio.OriginalName, a.Audio.MimeType
		audioSize, audioDuration = a.Audio.Size, a.Audio.DurationSeconds
	}

	return []any{
		toothSystem, toothValue, a.Title, a.Content, a.Category, a.Status, a.Priority, tagsJSON,
		audioFile, audioName, audioMime, audioSize, audioDuration,
		a.IsPrivate, a.UpdatedAt.UTC(),
	}, nil
}

func insertShares(ctx context.Context, tx *sql.Tx, a models.Annotation) error {
	for _, sh := range a.SharedWith {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO annotation_share (annotation_id, user_id, permission, shared_at)
			VALUES ($1, $2, $3, $4)
		`, a.ID, sh.UserID, sh.Permission, sh.SharedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert share: %w", err)
		}
	}
	return nil
}

func (s *Store) CreateAnnotation(ctx context.Context, a models.Annotation) error {
	values, err := columnValues(a)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	args := append([]any{a.ID, a.UserID, a.StudyInstanceUID, a.SeriesInstanceUID, a.SOPInstanceUID, a.MeasurementUID}, values...)
	args = append(args, a.CreatedAt.UTC())
	_, err = tx.ExecContext(ctx, `
		INSERT INTO annotation (id, user_id, study_instance_uid, series_instance_uid, sop_instance_uid, measurement_uid,
			tooth_system, tooth_value, title, content, category, status, priority, tags,
			audio_filename, audio_original_name, audio_mime_type, audio_size, audio_duration,
			is_private, updated_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`, args...)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert annotation: %w", err)
	}

	if err := insertShares(ctx, tx, a); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit annotation: %w", err)
	}
	return nil
}

func (s *Store) UpdateAnnotation(ctx context.Context, a models.Annotation) error {
	values, err := columnValues(a)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx, `
		UPDATE annotation
		SET tooth_system = $1, tooth_value = $2, title = $3, content = $4, category = $5, status = $6,
		    priority = $7, tags = $8, audio_filename = $9, audio_original_name = $10, audio_mime_type = $11,
		    audio_size = $12, audio_duration = $13, is_private = $14, updated_at = $15
		WHERE id = $16
	`, append(values, a.ID)...)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to update annotation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM annotation_share WHERE annotation_id = $1`, a.ID); err != nil {
		return fmt.Errorf("failed to clear shares: %w", err)
	}
	if err := insertShares(ctx, tx, a); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit annotation: %w", err)
	}
	return nil
}

func (s *Store) DeleteAnnotation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, `DELETE FROM annotation_share WHERE annotation_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete shares: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM annotation WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete annotation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) getAnnotationWhere(ctx context.Context, cond string, arg any) (models.Annotation, error) {
	a, err := scanAnnotation(s.db.QueryRowContext(ctx,
		`SELECT `+annotationColumns+` FROM annotation a WHERE `+cond, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Annotation{}, store.ErrNotFound
	}
	if err != nil {
		return models.Annotation{}, fmt.Errorf("failed to query annotation: %w", err)
	}

	shares, err := s.loadShares(ctx, []string{a.ID})
	if err != nil {
		return models.Annotation{}, err
	}
	if sh, ok := shares[a.ID]; ok {
		a.SharedWith = sh
	}
	return a, nil
}

func (s *Store) GetAnnotation(ctx context.Context, id string) (models.Annotation, error) {
	return s.getAnnotationWhere(ctx, `a.id = $1`, id)
}

func (s *Store) GetAnnotationByAudio(ctx context.Context, filename string) (models.Annotation, error) {
	return s.getAnnotationWhere(ctx, `a.audio_filename = $1`, filename)
}

func (s *Store) loadShares(ctx context.Context, ids []string) (map[string][]models.Share, error) {
	out := make(map[string][]models.Share)
	if len(ids) == 0 {
		return out, nil
	}

	var b builder
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		placeholders[i] = b.next(id)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT annotation_id, user_id, permission, shared_at FROM annotation_share
		WHERE annotation_id IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY user_id
	`, b.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shares: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			annotationID string
			sh           models.Share
		)
		if err := rows.Scan(&annotationID, &sh.UserID, &sh.Permission, &sh.SharedAt); err != nil {
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		out[annotationID] = append(out[annotationID], sh)
	}
	return out, rows.Err()
}

func filterConditions(f store.AnnotationFilter) *builder {
	b := &builder{}
	b.add(visibleTo, f.ViewerID, f.ViewerID)
	if f.StudyInstanceUID != "" {
		b.add(`a.study_instance_uid = ?`, f.StudyInstanceUID)
	}
	if f.ToothSystem != "" {
		b.add(`a.tooth_system = ?`, f.ToothSystem)
	}
	if f.ToothValue != "" {
		b.add(`a.tooth_value = ?`, f.ToothValue)
	}
	if f.Category != "" {
		b.add(`a.category = ?`, f.Category)
	}
	if f.Status != "" {
		b.add(`a.status = ?`, f.Status)
	}
	if f.Priority != "" {
		b.add(`a.priority = ?`, f.Priority)
	}
	if len(f.Tags) > 0 {
		// Tags are a JSON array; match any of the quoted tags
		conds := make([]string, len(f.Tags))
		args := make([]any, len(f.Tags))
		for i, tag := range f.Tags {
			quoted, _ := encodeJSON(tag)
			conds[i] = `a.tags LIKE ? ESCAPE '!'`
			args[i] = likePattern(quoted)
		}
		b.add("("+strings.Join(conds, " OR ")+")", args...)
	}
	if f.Search != "" {
		pattern := likePattern(strings.ToLower(f.Search))
		b.add(`(LOWER(a.title) LIKE ? ESCAPE '!' OR LOWER(a.content) LIKE ? ESCAPE '!')`, pattern, pattern)
	}
	return b
}

func (s *Store) ListAnnotations(ctx context.Context, f store.AnnotationFilter) ([]models.Annotation, int, error) {
	b := filterConditions(f)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM annotation a`+b.where(), b.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count annotations: %w", err)
	}

	query := `SELECT ` + annotationColumns + ` FROM annotation a` + b.where() + ` ORDER BY a.created_at DESC, a.id`
	if f.Limit > 0 {
		query += ` LIMIT ` + b.next(f.Limit) + ` OFFSET ` + b.next(f.Offset())
	}

	rows, err := s.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query annotations: %w", err)
	}
	annotations := []models.Annotation{}
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("failed to scan annotation: %w", err)
		}
		annotations = append(annotations, a)
	}
	if err := rows.Close(); err != nil {
		return nil, 0, err
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	ids := make([]string, len(annotations))
	for i, a := range annotations {
		ids[i] = a.ID
	}
	shares, err := s.loadShares(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range annotations {
		if sh, ok := shares[annotations[i].ID]; ok {
			annotations[i].SharedWith = sh
		}
	}
	return annotations, total, nil
}

func (s *Store) AnnotationStats(ctx context.Context, viewerID, studyUID string) (models.AnnotationStats, error) {
	stats := store.NewStats(studyUID)
	b := filterConditions(store.AnnotationFilter{ViewerID: viewerID, StudyInstanceUID: studyUID})

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(a.audio_filename) FROM annotation a`+b.where(), b.args...,
	).Scan(&stats.Total, &stats.WithAudio)
	if err != nil {
		return models.AnnotationStats{}, fmt.Errorf("failed to count annotations: %w", err)
	}

	for _, group := range []struct {
		column string
		counts map[string]int
	}{
		{"a.category", stats.ByCategory},
		{"a.status", stats.ByStatus},
		{"a.priority", stats.ByPriority},
	} {
		if err := s.countBy(ctx, group.column, b, group.counts); err != nil {
			return models.AnnotationStats{}, err
		}
	}
	return stats, nil
}

func (s *Store) countBy(ctx context.Context, column string, b *builder, counts map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) FROM annotation a`+b.where()+` GROUP BY `+column, b.args...)
	if err != nil {
		return fmt.Errorf("failed to group annotations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("failed to scan count: %w", err)
		}
		counts[key] = n
	}
	return rows.Err()
}
