// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/danielhkuo/dental-viewer/auth"
	"github.com/danielhkuo/dental-viewer/cliparse"
	"github.com/danielhkuo/dental-viewer/db"
	"github.com/danielhkuo/dental-viewer/middleware"
	"github.com/danielhkuo/dental-viewer/models"
	"github.com/danielhkuo/dental-viewer/store/sqlstore"
)

// TestPassword is the password of every user made by CreateTestUser
const TestPassword = "correct-horse-battery"

func init() {
	// bcrypt at full cost makes handler tests crawl
	auth.HashCost = 4
}

// SetupTestDB opens a fresh in-memory sqlite database with the full schema
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.Open(cliparse.DatabaseSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := db.CreateSchema(conn); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

// SetupTestStore wraps SetupTestDB in the SQL store
func SetupTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	return sqlstore.New(SetupTestDB(t))
}

// StepClock returns a clock that starts at start and advances by step on
// every call, so ordering by timestamp is deterministic
func StepClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(step)
		return t
	}
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Port:         5000,
		DatabaseURL:  ":memory:",
		DatabaseType: cliparse.DatabaseSQLite,
		JWTSecret:    "test-jwt-secret",
		JWTExpiresIn: time.Hour,
		CORSOrigin:   "*",
		MaxFileSize:  1 << 20,
		AudioStorage: cliparse.StorageDisk,
		Env:          cliparse.EnvDevelopment,
	}
}

// TestIssuer builds the token issuer for cfg
func TestIssuer(cfg cliparse.Config) *auth.TokenIssuer {
	return auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiresIn)
}

// UserStore is the part of the store CreateTestUser needs
type UserStore interface {
	CreateUser(ctx context.Context, u models.User) error
}

// CreateTestUser inserts an active dentist with TestPassword
func CreateTestUser(t *testing.T, st UserStore, username string) models.User {
	t.Helper()

	hash, err := auth.HashPassword(TestPassword)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	now := time.Now().UTC()
	u := models.User{
		ID:           auth.GenerateID(),
		Username:     username,
		Email:        username + "@clinic.test",
		PasswordHash: hash,
		Role:         models.RoleDentist,
		Preferences:  models.DefaultPreferences(),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := st.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return u
}

// AuthHeader returns an Authorization header carrying a fresh access token
func AuthHeader(t *testing.T, issuer *auth.TokenIssuer, u models.User) map[string]string {
	t.Helper()

	token, _, err := issuer.Issue(u.ID, u.Username, u.Role)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

// AsUser attaches claims for u, as RequireAuth would, so handlers can be
// called directly
func AsUser(req *http.Request, u models.User) *http.Request {
	claims := &auth.Claims{
		Username:         u.Username,
		Role:             u.Role,
		RegisteredClaims: jwt.RegisteredClaims{Subject: u.ID},
	}
	return req.WithContext(middleware.WithClaims(req.Context(), claims))
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// FilePart is one file in a multipart request
type FilePart struct {
	Field       string
	Filename    string
	ContentType string
	Content     []byte
}

// MakeMultipartRequest builds a multipart/form-data request from form
// fields and an optional file
func MakeMultipartRequest(t *testing.T, method, path string, fields map[string]string, file *FilePart) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("Failed to write field %s: %v", k, err)
		}
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+file.Field+`"; filename="`+file.Filename+`"`)
		h.Set("Content-Type", file.ContentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("Failed to create file part: %v", err)
		}
		part.Write(file.Content)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
