// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package mongostore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/danielhkuo/dental-viewer/dental"
	"github.com/danielhkuo/dental-viewer/models"
	"github.com/danielhkuo/dental-viewer/store"
)

func TestAnnotationQuery(t *testing.T) {
	q := AnnotationQuery(store.AnnotationFilter{ViewerID: "u1"})
	if len(q) != 1 {
		t.Fatalf("Expected only the visibility clause, got %v", q)
	}
	vis, ok := q["$or"].(bson.A)
	if !ok || len(vis) != 2 {
		t.Fatalf("Expected two visibility branches, got %v", q["$or"])
	}
	shared := vis[1].(bson.M)
	if shared["isPrivate"] != false || shared["sharedWith.userId"] != "u1" {
		t.Errorf("Unexpected shared branch %v", shared)
	}

	q = AnnotationQuery(store.AnnotationFilter{
		ViewerID:         "u1",
		StudyInstanceUID: "1.2.3",
		ToothSystem:      "FDI",
		ToothValue:       "11",
		Category:         models.CategoryDiagnosis,
		Tags:             []string{"caries", "pain"},
		Search:           "a+b",
	})
	if q["studyInstanceUID"] != "1.2.3" || q["tooth.system"] != "FDI" || q["tooth.value"] != "11" {
		t.Errorf("Missing equality clauses in %v", q)
	}
	if q["category"] != models.CategoryDiagnosis {
		t.Errorf("Expected category clause, got %v", q["category"])
	}
	if _, ok := q["status"]; ok {
		t.Error("Empty status should not be filtered")
	}
	in := q["tags"].(bson.M)["$in"].([]string)
	if len(in) != 2 {
		t.Errorf("Expected tags $in with 2 values, got %v", in)
	}

	and := q["$and"].(bson.A)
	search := and[0].(bson.M)["$or"].(bson.A)
	re := search[0].(bson.M)["title"].(primitive.Regex)
	if re.Pattern != `a\+b` || re.Options != "i" {
		t.Errorf("Expected escaped case-insensitive pattern, got %+v", re)
	}
}

func TestRecentStudiesPipeline(t *testing.T) {
	if n := len(recentStudiesPipeline("u1", 0)); n != 4 {
		t.Errorf("Expected 4 stages without limit, got %d", n)
	}
	p := recentStudiesPipeline("u1", 5)
	last := p[len(p)-1]
	if last[0].Key != "$limit" || last[0].Value != 5 {
		t.Errorf("Expected trailing $limit 5, got %v", last)
	}
}

// The remaining tests need a server: MONGODB_TEST_URI=mongodb://localhost:27017
func newTestStore(t *testing.T) *Store {
	t.Helper()

	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}
	ctx := context.Background()
	database := fmt.Sprintf("dental_viewer_test_%d", time.Now().UnixNano())

	s, err := Connect(ctx, uri, database)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() {
		s.client.Database(database).Drop(ctx)
		s.Close(ctx)
	})

	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	s.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	})
	return s
}

func TestMongoUsersAndTokens(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := models.User{ID: "u1", Username: "drsmith", Email: "drsmith@clinic.test", Role: models.RoleDentist, IsActive: true}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	u.ID = "u2"
	if err := s.CreateUser(ctx, u); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}
	if got, err := s.GetUserByLogin(ctx, "drsmith@clinic.test"); err != nil || got.ID != "u1" {
		t.Errorf("GetUserByLogin = %+v, %v", got, err)
	}

	now := time.Now().UTC()
	tok := models.RefreshToken{Token: "tok", UserID: "u1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := s.SaveRefreshToken(ctx, tok); err != nil {
		t.Fatalf("SaveRefreshToken: %v", err)
	}
	if _, err := s.ConsumeRefreshToken(ctx, "tok", now); err != nil {
		t.Errorf("ConsumeRefreshToken: %v", err)
	}
	if _, err := s.ConsumeRefreshToken(ctx, "tok", now); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected second consume to fail, got %v", err)
	}
}

func TestMongoViewerStates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	vs := &models.ViewerState{UserID: "u1", StudyInstanceUID: "1.2.3", SessionID: "s1"}
	if err := s.SaveViewerState(ctx, vs, nil); err != nil || vs.Version != 1 {
		t.Fatalf("First save: version %d, %v", vs.Version, err)
	}
	stale := 0
	if err := s.SaveViewerState(ctx, vs, &stale); !errors.Is(err, store.ErrConflict) {
		t.Errorf("Expected ErrConflict, got %v", err)
	}
	if err := s.SaveViewerState(ctx, vs, nil); err != nil || vs.Version != 2 {
		t.Errorf("Second save: version %d, %v", vs.Version, err)
	}

	for i := 0; i < store.MaxStatesPerStudy+1; i++ {
		extra := &models.ViewerState{UserID: "u1", StudyInstanceUID: "1.2.3", SessionID: fmt.Sprintf("x%02d", i)}
		if err := s.SaveViewerState(ctx, extra, nil); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}
	states, err := s.ListViewerStates(ctx, "u1", "1.2.3", 0)
	if err != nil {
		t.Fatalf("ListViewerStates: %v", err)
	}
	if len(states) != store.MaxStatesPerStudy {
		t.Errorf("Expected %d states after pruning, got %d", store.MaxStatesPerStudy, len(states))
	}

	studies, err := s.RecentStudies(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("RecentStudies: %v", err)
	}
	if len(studies) != 1 || studies[0].SessionCount != store.MaxStatesPerStudy {
		t.Errorf("Unexpected recent studies %+v", studies)
	}
}

func TestMongoAnnotations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	a := models.Annotation{
		ID:               "a1",
		UserID:           "u1",
		StudyInstanceUID: "1.2.3",
		Tooth:            &dental.ToothSelection{System: dental.SystemFDI, Value: "11"},
		Title:            "Caries",
		Category:         models.CategoryDiagnosis,
		Status:           models.StatusActive,
		Priority:         models.PriorityHigh,
		Tags:             []string{"caries"},
		IsPrivate:        true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.CreateAnnotation(ctx, a); err != nil {
		t.Fatalf("CreateAnnotation: %v", err)
	}

	list, total, err := s.ListAnnotations(ctx, store.AnnotationFilter{ViewerID: "u2"})
	if err != nil || total != 0 || len(list) != 0 {
		t.Errorf("Private annotation leaked: %d, %v", total, err)
	}

	a.Grant("u2", models.PermissionRead, now)
	if err := s.UpdateAnnotation(ctx, a); err != nil {
		t.Fatalf("UpdateAnnotation: %v", err)
	}
	list, total, err = s.ListAnnotations(ctx, store.AnnotationFilter{ViewerID: "u2", ToothSystem: "FDI", ToothValue: "11"})
	if err != nil || total != 1 || list[0].ID != "a1" {
		t.Errorf("Shared annotation not listed: %d, %v", total, err)
	}

	stats, err := s.AnnotationStats(ctx, "u1", "1.2.3")
	if err != nil {
		t.Fatalf("AnnotationStats: %v", err)
	}
	if stats.Total != 1 || stats.ByCategory[models.CategoryDiagnosis] != 1 || stats.ByStatus[models.StatusDraft] != 0 {
		t.Errorf("Unexpected stats %+v", stats)
	}

	if err := s.DeleteAnnotation(ctx, "a1"); err != nil {
		t.Fatalf("DeleteAnnotation: %v", err)
	}
	if _, err := s.GetAnnotation(ctx, "a1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
