// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/danielhkuo/dental-viewer/cliparse"
	"github.com/danielhkuo/dental-viewer/middleware"
	"github.com/danielhkuo/dental-viewer/models"
	"github.com/danielhkuo/dental-viewer/store"
)

const (
	defaultHistoryLimit = 10
	maxListLimit        = 50
)

type ViewerStateHandler struct {
	store store.ViewerStateStore
	cfg   cliparse.Config
}

func NewViewerStateHandler(st store.ViewerStateStore, cfg cliparse.Config) *ViewerStateHandler {
	return &ViewerStateHandler{store: st, cfg: cfg}
}

// queryLimit reads ?limit=, clamped to [1, maxListLimit]
func queryLimit(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 1 {
		return def
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

func stateFromRequest(userID string, req models.SaveViewerStateRequest) models.ViewerState {
	return models.ViewerState{
		UserID:           userID,
		StudyInstanceUID: req.StudyInstanceUID,
		SessionID:        req.SessionID,
		StudyInfo:        req.StudyInfo,
		ViewportState:    req.ViewportState,
		ToolState:        req.ToolState,
		MeasurementState: req.MeasurementState,
		DentalState:      req.DentalState,
	}
}

// Save handles POST /api/viewer-state/save
func (h *ViewerStateHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req models.SaveViewerStateRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	details := validateRequest(&req)
	if fe := validateTooth("dentalState.activeTooth", req.DentalState.ActiveTooth); fe != nil {
		details = append(details, *fe)
	}
	if len(details) > 0 {
		middleware.ValidationErrorResponse(w, details)
		return
	}

	vs := stateFromRequest(middleware.UserID(r), req)
	err := h.store.SaveViewerState(r.Context(), &vs, req.ExpectedVersion)
	if errors.Is(err, store.ErrConflict) {
		middleware.ErrorResponse(w, http.StatusConflict, "Viewer state was modified by another save; reload and retry")
		return
	}
	if err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to save viewer state", err)
		return
	}

	slog.Info("viewer state saved",
		"user_id", vs.UserID,
		"study_uid", vs.StudyInstanceUID,
		"session_id", vs.SessionID,
		"version", vs.Version,
	)
	middleware.JSONResponse(w, http.StatusOK, models.ViewerStateResponse{Success: true, ViewerState: &vs})
}

// AutoSave handles POST /api/viewer-state/auto-save. Validation is skipped
// and every outcome is a 200 so the viewer's timer never surfaces errors.
func (h *ViewerStateHandler) AutoSave(w http.ResponseWriter, r *http.Request) {
	var req models.SaveViewerStateRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.JSONResponse(w, http.StatusOK, models.AutoSaveResponse{Message: "Invalid JSON"})
		return
	}
	if req.StudyInstanceUID == "" || req.SessionID == "" {
		middleware.JSONResponse(w, http.StatusOK, models.AutoSaveResponse{Message: "studyInstanceUID and sessionId are required"})
		return
	}

	vs := stateFromRequest(middleware.UserID(r), req)
	vs.IsAutoSave = true
	if err := h.store.SaveViewerState(r.Context(), &vs, req.ExpectedVersion); err != nil {
		slog.Warn("auto-save failed", "user_id", vs.UserID, "study_uid", vs.StudyInstanceUID, "error", err)
		msg := "Auto-save failed"
		if errors.Is(err, store.ErrConflict) {
			msg = "Auto-save skipped: newer version exists"
		}
		middleware.JSONResponse(w, http.StatusOK, models.AutoSaveResponse{Message: msg})
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.AutoSaveResponse{Success: true, Version: vs.Version})
}

// Get handles GET /api/viewer-state?studyInstanceUID=...&sessionId=...
// Without sessionId the most recently updated state of the study is returned.
func (h *ViewerStateHandler) Get(w http.ResponseWriter, r *http.Request) {
	studyUID := r.URL.Query().Get("studyInstanceUID")
	if studyUID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "studyInstanceUID is required")
		return
	}

	vs, err := h.store.GetViewerState(r.Context(), middleware.UserID(r), studyUID, r.URL.Query().Get("sessionId"))
	if errors.Is(err, store.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Viewer state not found")
		return
	}
	if err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to load viewer state", err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.ViewerStateResponse{Success: true, ViewerState: &vs})
}

// History handles GET /api/viewer-state/history?studyInstanceUID=...&limit=...
func (h *ViewerStateHandler) History(w http.ResponseWriter, r *http.Request) {
	states, err := h.store.ListViewerStates(r.Context(),
		middleware.UserID(r),
		r.URL.Query().Get("studyInstanceUID"),
		queryLimit(r, defaultHistoryLimit),
	)
	if err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to load viewer state history", err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.ViewerStateListResponse{Success: true, ViewerStates: states})
}

// Delete handles DELETE /api/viewer-state/{id}
func (h *ViewerStateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "id is required")
		return
	}

	err := h.store.DeleteViewerState(r.Context(), middleware.UserID(r), id)
	if errors.Is(err, store.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Viewer state not found")
		return
	}
	if err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to delete viewer state", err)
		return
	}

	slog.Info("viewer state deleted", "user_id", middleware.UserID(r), "viewer_state_id", id)
	middleware.JSONResponse(w, http.StatusOK, models.MessageResponse{Success: true, Message: "Viewer state deleted"})
}

// RecentStudies handles GET /api/viewer-state/recent-studies?limit=...
func (h *ViewerStateHandler) RecentStudies(w http.ResponseWriter, r *http.Request) {
	studies, err := h.store.RecentStudies(r.Context(), middleware.UserID(r), queryLimit(r, defaultHistoryLimit))
	if err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to load recent studies", err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.RecentStudiesResponse{Success: true, Studies: studies})
}
