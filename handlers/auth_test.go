// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielhkuo/dental-viewer/auth"
	"github.com/danielhkuo/dental-viewer/models"
	"github.com/danielhkuo/dental-viewer/store/sqlstore"
	"github.com/danielhkuo/dental-viewer/testutil"
)

func newAuthHandler(t *testing.T) (*AuthHandler, *sqlstore.Store, *auth.TokenIssuer) {
	t.Helper()
	st := testutil.SetupTestStore(t)
	cfg := testutil.GetTestConfig()
	issuer := testutil.TestIssuer(cfg)
	return NewAuthHandler(st, issuer, cfg), st, issuer
}

func TestRegister(t *testing.T) {
	h, _, issuer := newAuthHandler(t)

	req := testutil.MakeRequest("POST", "/api/auth/register", models.RegisterRequest{
		Username: "drsmith",
		Email:    "DrSmith@Clinic.test",
		Password: "long-enough-password",
		Profile:  &models.Profile{FirstName: "Ann", LastName: "Smith"},
	}, nil)
	w := httptest.NewRecorder()
	h.Register(w, req)

	testutil.AssertStatus(t, w, http.StatusCreated)
	var resp models.AuthResponse
	testutil.AssertJSON(t, w, &resp)

	if !resp.Success || resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatalf("Expected tokens in response, got %+v", resp)
	}
	if resp.User.Email != "drsmith@clinic.test" {
		t.Errorf("Expected lowercased email, got '%s'", resp.User.Email)
	}
	if resp.User.Role != models.RoleDentist {
		t.Errorf("Expected default role dentist, got '%s'", resp.User.Role)
	}
	if resp.User.Preferences.Theme != "dental-dark" || resp.User.Profile.FirstName != "Ann" {
		t.Errorf("Unexpected profile/preferences %+v", resp.User)
	}
	if resp.ExpiresIn != 3600 {
		t.Errorf("Expected expiresIn 3600, got %d", resp.ExpiresIn)
	}

	claims, err := issuer.Parse(resp.AccessToken)
	if err != nil {
		t.Fatalf("Access token does not verify: %v", err)
	}
	if claims.UserID() != resp.User.ID || claims.Username != "drsmith" {
		t.Errorf("Unexpected claims %+v", claims)
	}
}

func TestRegister_Validation(t *testing.T) {
	h, st, _ := newAuthHandler(t)
	testutil.CreateTestUser(t, st, "taken")

	testCases := []struct {
		name       string
		body       models.RegisterRequest
		wantStatus int
		wantField  string
	}{
		{
			name:       "missing username",
			body:       models.RegisterRequest{Email: "a@b.test", Password: "long-enough-password"},
			wantStatus: http.StatusBadRequest,
			wantField:  "username",
		},
		{
			name:       "bad email",
			body:       models.RegisterRequest{Username: "newuser", Email: "nope", Password: "long-enough-password"},
			wantStatus: http.StatusBadRequest,
			wantField:  "email",
		},
		{
			name:       "short password",
			body:       models.RegisterRequest{Username: "newuser", Email: "a@b.test", Password: "short"},
			wantStatus: http.StatusBadRequest,
			wantField:  "password",
		},
		{
			name:       "admin role not self-assignable",
			body:       models.RegisterRequest{Username: "newuser", Email: "a@b.test", Password: "long-enough-password", Role: models.RoleAdmin},
			wantStatus: http.StatusBadRequest,
			wantField:  "role",
		},
		{
			name:       "profile field too long",
			body:       models.RegisterRequest{Username: "newuser", Email: "a@b.test", Password: "long-enough-password", Profile: &models.Profile{FirstName: string(make([]byte, 51))}},
			wantStatus: http.StatusBadRequest,
			wantField:  "profile.firstName",
		},
		{
			name:       "duplicate username",
			body:       models.RegisterRequest{Username: "taken", Email: "other@b.test", Password: "long-enough-password"},
			wantStatus: http.StatusConflict,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.Register(w, testutil.MakeRequest("POST", "/api/auth/register", tc.body, nil))

			testutil.AssertStatus(t, w, tc.wantStatus)
			var resp models.ErrorResponse
			testutil.AssertJSON(t, w, &resp)
			if resp.Success {
				t.Error("Expected success false")
			}
			if tc.wantField == "" {
				return
			}
			found := false
			for _, d := range resp.Details {
				if d.Field == tc.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected detail for %s, got %+v", tc.wantField, resp.Details)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	h, st, _ := newAuthHandler(t)
	u := testutil.CreateTestUser(t, st, "drsmith")

	testCases := []struct {
		name       string
		login      string
		password   string
		wantStatus int
	}{
		{"by username", "drsmith", testutil.TestPassword, http.StatusOK},
		{"by email", "DRSMITH@clinic.test", testutil.TestPassword, http.StatusOK},
		{"wrong password", "drsmith", "wrong-password", http.StatusUnauthorized},
		{"unknown user", "nobody", testutil.TestPassword, http.StatusUnauthorized},
		{"missing password", "drsmith", "", http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.Login(w, testutil.MakeRequest("POST", "/api/auth/login",
				models.LoginRequest{Login: tc.login, Password: tc.password}, nil))
			testutil.AssertStatus(t, w, tc.wantStatus)
		})
	}

	stored, err := st.GetUser(t.Context(), u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if stored.LastLogin == nil {
		t.Error("Expected lastLogin to be recorded")
	}
}

func TestLogin_Deactivated(t *testing.T) {
	h, st, _ := newAuthHandler(t)
	u := testutil.CreateTestUser(t, st, "retired")
	u.IsActive = false
	if err := st.UpdateUser(t.Context(), u); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	w := httptest.NewRecorder()
	h.Login(w, testutil.MakeRequest("POST", "/api/auth/login",
		models.LoginRequest{Login: "retired", Password: testutil.TestPassword}, nil))
	testutil.AssertStatus(t, w, http.StatusForbidden)
}

func TestRefresh_RotatesToken(t *testing.T) {
	h, st, _ := newAuthHandler(t)
	testutil.CreateTestUser(t, st, "drsmith")

	w := httptest.NewRecorder()
	h.Login(w, testutil.MakeRequest("POST", "/api/auth/login",
		models.LoginRequest{Login: "drsmith", Password: testutil.TestPassword}, nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	var login models.AuthResponse
	testutil.AssertJSON(t, w, &login)

	w = httptest.NewRecorder()
	h.Refresh(w, testutil.MakeRequest("POST", "/api/auth/refresh", models.RefreshRequest{RefreshToken: login.RefreshToken}, nil))
	testutil.AssertStatus(t, w, http.StatusOK)
	var refreshed models.AuthResponse
	testutil.AssertJSON(t, w, &refreshed)
	if refreshed.RefreshToken == "" || refreshed.RefreshToken == login.RefreshToken {
		t.Errorf("Expected a new refresh token, got '%s'", refreshed.RefreshToken)
	}

	// The old token was consumed
	w = httptest.NewRecorder()
	h.Refresh(w, testutil.MakeRequest("POST", "/api/auth/refresh", models.RefreshRequest{RefreshToken: login.RefreshToken}, nil))
	testutil.AssertStatus(t, w, http.StatusUnauthorized)

	// The new one works
	w = httptest.NewRecorder()
	h.Refresh(w, testutil.MakeRequest("POST", "/api/auth/refresh", models.RefreshRequest{RefreshToken: refreshed.RefreshToken}, nil))
	testutil.AssertStatus(t, w, http.StatusOK)
}

func TestProfile(t *testing.T) {
	h, st, _ := newAuthHandler(t)
	u := testutil.CreateTestUser(t, st, "drsmith")
	other := testutil.CreateTestUser(t, st, "drjones")

	w := httptest.NewRecorder()
	h.GetProfile(w, testutil.AsUser(testutil.MakeRequest("GET", "/api/auth/profile", nil, nil), u))
	testutil.AssertStatus(t, w, http.StatusOK)
	var got models.UserResponse
	testutil.AssertJSON(t, w, &got)
	if got.User.Username != "drsmith" {
		t.Errorf("Expected drsmith, got '%s'", got.User.Username)
	}

	update := map[string]any{
		"profile":     map[string]any{"firstName": "Ann", "specialty": "Endodontics"},
		"preferences": map[string]any{"theme": "dental-light", "autoSaveInterval": 60},
	}
	w = httptest.NewRecorder()
	h.UpdateProfile(w, testutil.AsUser(testutil.MakeRequest("PUT", "/api/auth/profile", update, nil), u))
	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.AssertJSON(t, w, &got)
	if got.User.Profile.Specialty != "Endodontics" || got.User.Preferences.Theme != "dental-light" {
		t.Errorf("Update not applied: %+v", got.User)
	}
	if got.User.Preferences.ToothNumberingSystem != "FDI" || got.User.Preferences.AutoSaveInterval != 60 {
		t.Errorf("Untouched preferences should survive: %+v", got.User.Preferences)
	}

	testCases := []struct {
		name       string
		body       map[string]any
		wantStatus int
	}{
		{"bad theme", map[string]any{"preferences": map[string]any{"theme": "neon"}}, http.StatusBadRequest},
		{"interval too small", map[string]any{"preferences": map[string]any{"autoSaveInterval": 1}}, http.StatusBadRequest},
		{"email taken", map[string]any{"email": other.Email}, http.StatusConflict},
		{"email change", map[string]any{"email": "new@clinic.test"}, http.StatusOK},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.UpdateProfile(w, testutil.AsUser(testutil.MakeRequest("PUT", "/api/auth/profile", tc.body, nil), u))
			testutil.AssertStatus(t, w, tc.wantStatus)
		})
	}
}

func TestLogout(t *testing.T) {
	h, st, _ := newAuthHandler(t)
	u := testutil.CreateTestUser(t, st, "drsmith")

	login := func() models.AuthResponse {
		w := httptest.NewRecorder()
		h.Login(w, testutil.MakeRequest("POST", "/api/auth/login",
			models.LoginRequest{Login: "drsmith", Password: testutil.TestPassword}, nil))
		var resp models.AuthResponse
		testutil.AssertJSON(t, w, &resp)
		return resp
	}
	refresh := func(token string) int {
		w := httptest.NewRecorder()
		h.Refresh(w, testutil.MakeRequest("POST", "/api/auth/refresh", models.RefreshRequest{RefreshToken: token}, nil))
		return w.Code
	}

	first, second := login(), login()

	w := httptest.NewRecorder()
	h.Logout(w, testutil.AsUser(testutil.MakeRequest("POST", "/api/auth/logout",
		models.LogoutRequest{RefreshToken: first.RefreshToken}, nil), u))
	testutil.AssertStatus(t, w, http.StatusOK)

	if code := refresh(first.RefreshToken); code != http.StatusUnauthorized {
		t.Errorf("Logged-out token should fail, got %d", code)
	}

	third := login()
	w = httptest.NewRecorder()
	h.Logout(w, testutil.AsUser(testutil.MakeRequest("POST", "/api/auth/logout",
		models.LogoutRequest{All: true}, nil), u))
	testutil.AssertStatus(t, w, http.StatusOK)

	for _, tok := range []string{second.RefreshToken, third.RefreshToken} {
		if code := refresh(tok); code != http.StatusUnauthorized {
			t.Errorf("Logout all should revoke every token, got %d", code)
		}
	}

	// Empty body only acknowledges
	w = httptest.NewRecorder()
	h.Logout(w, testutil.AsUser(testutil.MakeRequest("POST", "/api/auth/logout", nil, nil), u))
	testutil.AssertStatus(t, w, http.StatusOK)
}
