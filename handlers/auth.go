// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielhkuo/dental-viewer/auth"
	"github.com/danielhkuo/dental-viewer/cliparse"
	"github.com/danielhkuo/dental-viewer/middleware"
	"github.com/danielhkuo/dental-viewer/models"
	"github.com/danielhkuo/dental-viewer/store"
)

type AuthHandler struct {
	store  store.UserStore
	tokens *auth.TokenIssuer
	cfg    cliparse.Config
}

func NewAuthHandler(st store.UserStore, tokens *auth.TokenIssuer, cfg cliparse.Config) *AuthHandler {
	return &AuthHandler{store: st, tokens: tokens, cfg: cfg}
}

// issueTokens signs an access token and stores a fresh refresh token
func (h *AuthHandler) issueTokens(ctx context.Context, u models.User) (models.AuthResponse, error) {
	access, _, err := h.tokens.Issue(u.ID, u.Username, u.Role)
	if err != nil {
		return models.AuthResponse{}, err
	}
	refresh, err := auth.GenerateRefreshToken()
	if err != nil {
		return models.AuthResponse{}, err
	}
	now := time.Now().UTC()
	err = h.store.SaveRefreshToken(ctx, models.RefreshToken{
		Token:     refresh,
		UserID:    u.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(auth.RefreshTokenTTL),
	})
	if err != nil {
		return models.AuthResponse{}, err
	}
	return models.AuthResponse{
		Success:      true,
		User:         u,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(h.tokens.TTL().Seconds()),
	}, nil
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if details := validateRequest(&req); details != nil {
		middleware.ValidationErrorResponse(w, details)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to register user", err)
		return
	}

	now := time.Now().UTC()
	u := models.User{
		ID:           auth.GenerateID(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		Preferences:  models.DefaultPreferences(),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if u.Role == "" {
		u.Role = models.RoleDentist
	}
	if req.Profile != nil {
		u.Profile = *req.Profile
	}

	err = h.store.CreateUser(r.Context(), u)
	if errors.Is(err, store.ErrDuplicate) {
		middleware.ErrorResponse(w, http.StatusConflict, "Username or email already exists")
		return
	}
	if err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to register user", err)
		return
	}

	resp, err := h.issueTokens(r.Context(), u)
	if err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to issue tokens", err)
		return
	}

	slog.Info("user registered", "user_id", u.ID, "username", u.Username, "role", u.Role)
	middleware.JSONResponse(w, http.StatusCreated, resp)
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if details := validateRequest(&req); details != nil {
		middleware.ValidationErrorResponse(w, details)
		return
	}

	login := strings.TrimSpace(req.Login)
	if strings.Contains(login, "@") {
		login = strings.ToLower(login)
	}
	u, err := h.store.GetUserByLogin(r.Context(), login)
	if errors.Is(err, store.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to log in", err)
		return
	}
	if err := auth.CheckPassword(u.PasswordHash, req.Password); err != nil {
		slog.Warn("login failed", "user_id", u.ID)
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if !u.IsActive {
		middleware.ErrorResponse(w, http.StatusForbidden, "Account is deactivated")
		return
	}

	now := time.Now().UTC()
	u.LastLogin = &now
	u.UpdatedAt = now
	if err := h.store.UpdateUser(r.Context(), u); err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to log in", err)
		return
	}

	resp, err := h.issueTokens(r.Context(), u)
	if err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to issue tokens", err)
		return
	}

	slog.Info("user logged in", "user_id", u.ID)
	middleware.JSONResponse(w, http.StatusOK, resp)
}

// Refresh handles POST /api/auth/refresh. The presented refresh token is
// consumed; a new pair is returned.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if details := validateRequest(&req); details != nil {
		middleware.ValidationErrorResponse(w, details)
		return
	}

	old, err := h.store.ConsumeRefreshToken(r.Context(), req.RefreshToken, time.Now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}
	if err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to refresh token", err)
		return
	}

	u, err := h.store.GetUser(r.Context(), old.UserID)
	if errors.Is(err, store.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}
	if err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to refresh token", err)
		return
	}
	if !u.IsActive {
		middleware.ErrorResponse(w, http.StatusForbidden, "Account is deactivated")
		return
	}

	resp, err := h.issueTokens(r.Context(), u)
	if err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to issue tokens", err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, resp)
}

// GetProfile handles GET /api/auth/profile
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	u, err := h.store.GetUser(r.Context(), middleware.UserID(r))
	if errors.Is(err, store.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to load profile", err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.UserResponse{Success: true, User: u})
}

// mergePreferences overlays the non-zero fields of patch onto base
func mergePreferences(base, patch models.Preferences) models.Preferences {
	if patch.Theme != "" {
		base.Theme = patch.Theme
	}
	if patch.ToothNumberingSystem != "" {
		base.ToothNumberingSystem = patch.ToothNumberingSystem
	}
	if patch.DefaultPresetID != "" {
		base.DefaultPresetID = patch.DefaultPresetID
	}
	if patch.AutoSaveInterval != 0 {
		base.AutoSaveInterval = patch.AutoSaveInterval
	}
	if patch.Language != "" {
		base.Language = patch.Language
	}
	return base
}

// UpdateProfile handles PUT /api/auth/profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateProfileRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		req.Email = &email
	}
	if details := validateRequest(&req); details != nil {
		middleware.ValidationErrorResponse(w, details)
		return
	}

	u, err := h.store.GetUser(r.Context(), middleware.UserID(r))
	if errors.Is(err, store.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to update profile", err)
		return
	}

	if req.Email != nil {
		u.Email = *req.Email
	}
	if req.Profile != nil {
		u.Profile = *req.Profile
	}
	if req.Preferences != nil {
		u.Preferences = mergePreferences(u.Preferences, *req.Preferences)
	}
	u.UpdatedAt = time.Now().UTC()

	err = h.store.UpdateUser(r.Context(), u)
	if errors.Is(err, store.ErrDuplicate) {
		middleware.ErrorResponse(w, http.StatusConflict, "Email already in use")
		return
	}
	if err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to update profile", err)
		return
	}

	slog.Info("profile updated", "user_id", u.ID)
	middleware.JSONResponse(w, http.StatusOK, models.UserResponse{Success: true, User: u})
}

// Logout handles POST /api/auth/logout. An empty body is accepted and only
// acknowledges; access tokens stay valid until they expire.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req models.LogoutRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	userID := middleware.UserID(r)

	switch {
	case req.All:
		if err := h.store.DeleteRefreshTokens(r.Context(), userID); err != nil {
			middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to log out", err)
			return
		}
	case req.RefreshToken != "":
		err := h.store.DeleteRefreshToken(r.Context(), userID, req.RefreshToken)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to log out", err)
			return
		}
	}

	slog.Info("user logged out", "user_id", userID, "all", req.All)
	middleware.JSONResponse(w, http.StatusOK, models.MessageResponse{Success: true, Message: "Logged out"})
}
