// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"errors"
	"time"

	"github.com/danielhkuo/dental-viewer/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate record")
	// ErrConflict is a lost compare-and-swap or a concurrent insert of the
	// same viewer state key; callers retry with the current version
	ErrConflict = errors.New("version conflict")
)

// MaxStatesPerStudy bounds the viewer states kept per (user, study)
const MaxStatesPerStudy = 10

// AnnotationFilter narrows ListAnnotations. ViewerID is required: only
// annotations the viewer may read are returned.
type AnnotationFilter struct {
	ViewerID         string
	StudyInstanceUID string
	ToothSystem      string
	ToothValue       string
	Category         string
	Status           string
	Priority         string
	Tags             []string
	Search           string
	Page             int
	Limit            int
}

// Offset is the number of rows skipped for the filter's page
func (f AnnotationFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

type UserStore interface {
	CreateUser(ctx context.Context, u models.User) error
	GetUser(ctx context.Context, id string) (models.User, error)
	// GetUserByLogin matches the username or the email
	GetUserByLogin(ctx context.Context, login string) (models.User, error)
	UpdateUser(ctx context.Context, u models.User) error

	SaveRefreshToken(ctx context.Context, t models.RefreshToken) error
	// ConsumeRefreshToken deletes the token and returns it. Expired tokens
	// are deleted too and reported as ErrNotFound.
	ConsumeRefreshToken(ctx context.Context, token string, now time.Time) (models.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, userID, token string) error
	DeleteRefreshTokens(ctx context.Context, userID string) error
}

type ViewerStateStore interface {
	// SaveViewerState upserts on (user, study, session). A new key starts at
	// version 1; an existing one is bumped by compare-and-swap on its current
	// version, or on expectedVersion when given. Afterwards only the
	// MaxStatesPerStudy most recently updated states of the study are kept.
	// vs is filled with the stored ID, version and timestamps.
	SaveViewerState(ctx context.Context, vs *models.ViewerState, expectedVersion *int) error
	// GetViewerState returns the session's state, or the latest for the
	// study when sessionID is empty
	GetViewerState(ctx context.Context, userID, studyUID, sessionID string) (models.ViewerState, error)
	// ListViewerStates returns newest first; an empty studyUID lists all
	ListViewerStates(ctx context.Context, userID, studyUID string, limit int) ([]models.ViewerState, error)
	DeleteViewerState(ctx context.Context, userID, id string) error
	RecentStudies(ctx context.Context, userID string, limit int) ([]models.RecentStudy, error)
}

type AnnotationStore interface {
	CreateAnnotation(ctx context.Context, a models.Annotation) error
	GetAnnotation(ctx context.Context, id string) (models.Annotation, error)
	GetAnnotationByAudio(ctx context.Context, filename string) (models.Annotation, error)
	// UpdateAnnotation replaces the stored document, shares included
	UpdateAnnotation(ctx context.Context, a models.Annotation) error
	DeleteAnnotation(ctx context.Context, id string) error
	ListAnnotations(ctx context.Context, f AnnotationFilter) ([]models.Annotation, int, error)
	AnnotationStats(ctx context.Context, viewerID, studyUID string) (models.AnnotationStats, error)
}

// Store is the persistence surface used by the handlers
type Store interface {
	UserStore
	ViewerStateStore
	AnnotationStore
	Close(ctx context.Context) error
}

// NewStats returns stats with every enum value present at zero
func NewStats(studyUID string) models.AnnotationStats {
	s := models.AnnotationStats{
		StudyInstanceUID: studyUID,
		ByCategory:       map[string]int{},
		ByStatus:         map[string]int{},
		ByPriority:       map[string]int{},
	}
	for _, c := range []string{models.CategoryDiagnosis, models.CategoryTreatment, models.CategoryObservation, models.CategoryNote, models.CategoryFollowup} {
		s.ByCategory[c] = 0
	}
	for _, st := range []string{models.StatusDraft, models.StatusActive, models.StatusResolved, models.StatusArchived} {
		s.ByStatus[st] = 0
	}
	for _, p := range []string{models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityUrgent} {
		s.ByPriority[p] = 0
	}
	return s
}

// GroupRecentStudies folds states (newest first) into one row per study,
// keeping the study info of the most recent state
func GroupRecentStudies(states []models.ViewerState, limit int) []models.RecentStudy {
	out := []models.RecentStudy{}
	index := make(map[string]int)
	for _, vs := range states {
		if i, ok := index[vs.StudyInstanceUID]; ok {
			out[i].SessionCount++
			continue
		}
		index[vs.StudyInstanceUID] = len(out)
		out = append(out, models.RecentStudy{
			StudyInstanceUID: vs.StudyInstanceUID,
			StudyInfo:        vs.StudyInfo,
			LastAccessed:     vs.UpdatedAt,
			SessionCount:     1,
		})
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
