// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielhkuo/dental-viewer/attachments"
	"github.com/danielhkuo/dental-viewer/auth"
	"github.com/danielhkuo/dental-viewer/cliparse"
	"github.com/danielhkuo/dental-viewer/dental"
	"github.com/danielhkuo/dental-viewer/middleware"
	"github.com/danielhkuo/dental-viewer/models"
	"github.com/danielhkuo/dental-viewer/store"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
	// multipartMemory is held in memory before form parts spill to disk
	multipartMemory = 1 << 20
)

type AnnotationHandler struct {
	store store.Store
	files attachments.Storage
	cfg   cliparse.Config
}

func NewAnnotationHandler(st store.Store, files attachments.Storage, cfg cliparse.Config) *AnnotationHandler {
	return &AnnotationHandler{store: st, files: files, cfg: cfg}
}

// errRequest carries a client error out of request decoding
type errRequest struct {
	status  int
	message string
}

func (e *errRequest) Error() string { return e.message }

func isMultipart(r *http.Request) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mediaType == "multipart/form-data"
}

// parseTags accepts a JSON array or a comma separated list
func parseTags(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var tags []string
	if strings.HasPrefix(raw, "[") && json.Unmarshal([]byte(raw), &tags) == nil {
		return tags
	}
	return strings.Split(raw, ",")
}

// cleanTags trims, drops empties and duplicates, keeping first-seen order
func cleanTags(tags []string) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// formRequest reads the create request from multipart form fields. The tooth
// is given either as a JSON "tooth" field or as toothSystem/toothValue.
func formRequest(form *multipart.Form) (models.CreateAnnotationRequest, error) {
	get := func(key string) string {
		if v := form.Value[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	req := models.CreateAnnotationRequest{
		StudyInstanceUID:  get("studyInstanceUID"),
		SeriesInstanceUID: get("seriesInstanceUID"),
		SOPInstanceUID:    get("sopInstanceUID"),
		MeasurementUID:    get("measurementUid"),
		Title:             get("title"),
		Content:           get("content"),
		Category:          get("category"),
		Status:            get("status"),
		Priority:          get("priority"),
		Tags:              parseTags(get("tags")),
	}

	if raw := get("tooth"); raw != "" {
		var t dental.ToothSelection
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return req, &errRequest{http.StatusBadRequest, "tooth must be a JSON object"}
		}
		req.Tooth = &t
	} else if system := get("toothSystem"); system != "" {
		req.Tooth = &dental.ToothSelection{System: dental.NumberingSystem(system), Value: get("toothValue")}
	}
	if raw := get("isPrivate"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return req, &errRequest{http.StatusBadRequest, "isPrivate must be true or false"}
		}
		req.IsPrivate = v
	}
	if raw := get("audioDuration"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return req, &errRequest{http.StatusBadRequest, "audioDuration must be a number"}
		}
		req.AudioDuration = v
	}
	return req, nil
}

// upload is an accepted audio part, not yet stored
type upload struct {
	file     multipart.File
	header   *multipart.FileHeader
	mimeType string
}

func (h *AnnotationHandler) readUpload(form *multipart.Form) (*upload, error) {
	headers := form.File["audio"]
	if len(headers) == 0 {
		return nil, nil
	}
	fh := headers[0]
	if fh.Size > h.cfg.MaxFileSize {
		return nil, &errRequest{http.StatusRequestEntityTooLarge, "Audio file too large"}
	}
	mimeType, err := attachments.NormalizeType(fh.Header.Get("Content-Type"))
	if err != nil {
		return nil, &errRequest{http.StatusBadRequest, "Unsupported audio type; upload mp3, wav, webm, ogg, m4a or aac"}
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	return &upload{file: f, header: fh, mimeType: mimeType}, nil
}

// decodeCreate reads either body format. The returned upload, when non-nil,
// must be closed by the caller.
func (h *AnnotationHandler) decodeCreate(w http.ResponseWriter, r *http.Request) (models.CreateAnnotationRequest, *upload, error) {
	var req models.CreateAnnotationRequest
	if !isMultipart(r) {
		if err := middleware.ParseJSONBody(r, &req); err != nil {
			return req, nil, &errRequest{http.StatusBadRequest, "Invalid JSON"}
		}
		return req, nil, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxFileSize+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, nil, &errRequest{http.StatusRequestEntityTooLarge, "Audio file too large"}
		}
		return req, nil, &errRequest{http.StatusBadRequest, "Invalid multipart form"}
	}

	req, err := formRequest(r.MultipartForm)
	if err != nil {
		return req, nil, err
	}
	up, err := h.readUpload(r.MultipartForm)
	return req, up, err
}

// storeAudio writes the upload under a generated name
func (h *AnnotationHandler) storeAudio(ctx context.Context, up *upload, duration float64) (*models.AudioAttachment, error) {
	name := attachments.NewName(up.header.Filename, up.mimeType, time.Now())
	if err := h.files.Save(ctx, name, up.file, up.header.Size, up.mimeType); err != nil {
		return nil, err
	}
	return &models.AudioAttachment{
		Filename:        name,
		OriginalName:    up.header.Filename,
		MimeType:        up.mimeType,
		Size:            up.header.Size,
		DurationSeconds: duration,
	}, nil
}

// discardAudio removes a stored blob after a later step failed
func (h *AnnotationHandler) discardAudio(ctx context.Context, a *models.AudioAttachment) {
	if a == nil {
		return
	}
	if err := h.files.Delete(ctx, a.Filename); err != nil {
		slog.Error("failed to remove orphaned audio", "filename", a.Filename, "error", err)
	}
}

func (h *AnnotationHandler) requestError(w http.ResponseWriter, err error) {
	var reqErr *errRequest
	if errors.As(err, &reqErr) {
		middleware.ErrorResponse(w, reqErr.status, reqErr.message)
		return
	}
	middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to read request", err)
}

// Create handles POST /api/annotations (JSON or multipart with optional
// "audio" part)
func (h *AnnotationHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, up, err := h.decodeCreate(w, r)
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	if up != nil {
		defer up.file.Close()
	}
	if err != nil {
		h.requestError(w, err)
		return
	}

	req.Tags = cleanTags(req.Tags)
	details := validateRequest(&req)
	if fe := validateTooth("tooth", req.Tooth); fe != nil {
		details = append(details, *fe)
	}
	if len(details) > 0 {
		middleware.ValidationErrorResponse(w, details)
		return
	}

	now := time.Now().UTC()
	a := models.Annotation{
		ID:                auth.GenerateID(),
		UserID:            middleware.UserID(r),
		StudyInstanceUID:  req.StudyInstanceUID,
		SeriesInstanceUID: req.SeriesInstanceUID,
		SOPInstanceUID:    req.SOPInstanceUID,
		MeasurementUID:    req.MeasurementUID,
		Tooth:             req.Tooth,
		Title:             req.Title,
		Content:           req.Content,
		Category:          withDefault(req.Category, models.CategoryNote),
		Status:            withDefault(req.Status, models.StatusActive),
		Priority:          withDefault(req.Priority, models.PriorityMedium),
		Tags:              req.Tags,
		IsPrivate:         req.IsPrivate,
		SharedWith:        []models.Share{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if up != nil {
		a.Audio, err = h.storeAudio(r.Context(), up, req.AudioDuration)
		if err != nil {
			middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to store audio", err)
			return
		}
	}

	if err := h.store.CreateAnnotation(r.Context(), a); err != nil {
		h.discardAudio(context.WithoutCancel(r.Context()), a.Audio)
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to create annotation", err)
		return
	}

	slog.Info("annotation created",
		"annotation_id", a.ID,
		"user_id", a.UserID,
		"study_uid", a.StudyInstanceUID,
		"has_audio", a.Audio != nil,
	)
	middleware.JSONResponse(w, http.StatusCreated, models.AnnotationResponse{Success: true, Annotation: a})
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// filterFromQuery reads the list filters shared by List and ByTooth
func filterFromQuery(r *http.Request) store.AnnotationFilter {
	q := r.URL.Query()
	f := store.AnnotationFilter{
		ViewerID:         middleware.UserID(r),
		StudyInstanceUID: q.Get("studyInstanceUID"),
		ToothSystem:      q.Get("toothSystem"),
		ToothValue:       strings.ToUpper(q.Get("toothValue")),
		Category:         q.Get("category"),
		Status:           q.Get("status"),
		Priority:         q.Get("priority"),
		Search:           strings.TrimSpace(q.Get("search")),
	}
	for _, raw := range q["tags"] {
		f.Tags = append(f.Tags, parseTags(raw)...)
	}
	f.Tags = cleanTags(f.Tags)
	if system, err := dental.ParseSystem(f.ToothSystem); err == nil {
		f.ToothSystem = string(system)
	}

	f.Page, _ = strconv.Atoi(q.Get("page"))
	if f.Page < 1 {
		f.Page = 1
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	if f.Limit < 1 {
		f.Limit = defaultPageLimit
	}
	if f.Limit > maxPageLimit {
		f.Limit = maxPageLimit
	}
	return f
}

// List handles GET /api/annotations
func (h *AnnotationHandler) List(w http.ResponseWriter, r *http.Request) {
	f := filterFromQuery(r)
	annotations, total, err := h.store.ListAnnotations(r.Context(), f)
	if err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to list annotations", err)
		return
	}

	middleware.JSONResponse(w, http.StatusOK, models.AnnotationListResponse{
		Success:     true,
		Annotations: annotations,
		Pagination: &models.Pagination{
			Page:  f.Page,
			Limit: f.Limit,
			Total: total,
			Pages: int(math.Ceil(float64(total) / float64(f.Limit))),
		},
	})
}

// load fetches an annotation and writes 404 when it is missing
func (h *AnnotationHandler) load(w http.ResponseWriter, r *http.Request) (models.Annotation, bool) {
	a, err := h.store.GetAnnotation(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Annotation not found")
		return a, false
	}
	if err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to load annotation", err)
		return a, false
	}
	return a, true
}

// Get handles GET /api/annotations/{id}
func (h *AnnotationHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, ok := h.load(w, r)
	if !ok {
		return
	}
	if !a.CanRead(middleware.UserID(r)) {
		middleware.ErrorResponse(w, http.StatusForbidden, "Access denied")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.AnnotationResponse{Success: true, Annotation: a})
}

// Update handles PUT /api/annotations/{id}. The owner and write-shared users
// may edit; only the owner may change privacy.
func (h *AnnotationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateAnnotationRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Tags != nil {
		tags := cleanTags(*req.Tags)
		req.Tags = &tags
	}
	details := validateRequest(&req)
	if fe := validateTooth("tooth", req.Tooth); fe != nil {
		details = append(details, *fe)
	}
	if len(details) > 0 {
		middleware.ValidationErrorResponse(w, details)
		return
	}

	a, ok := h.load(w, r)
	if !ok {
		return
	}
	userID := middleware.UserID(r)
	if !a.CanWrite(userID) {
		middleware.ErrorResponse(w, http.StatusForbidden, "Access denied")
		return
	}
	if req.IsPrivate != nil && *req.IsPrivate != a.IsPrivate && a.UserID != userID {
		middleware.ErrorResponse(w, http.StatusForbidden, "Only the owner can change privacy")
		return
	}

	if req.Tooth != nil {
		a.Tooth = req.Tooth
	}
	if req.Title != nil {
		a.Title = *req.Title
	}
	if req.Content != nil {
		a.Content = *req.Content
	}
	if req.Category != nil {
		a.Category = *req.Category
	}
	if req.Status != nil {
		a.Status = *req.Status
	}
	if req.Priority != nil {
		a.Priority = *req.Priority
	}
	if req.Tags != nil {
		a.Tags = *req.Tags
	}
	if req.IsPrivate != nil {
		a.IsPrivate = *req.IsPrivate
	}
	a.UpdatedAt = time.Now().UTC()

	if err := h.store.UpdateAnnotation(r.Context(), a); err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to update annotation", err)
		return
	}

	slog.Info("annotation updated", "annotation_id", a.ID, "user_id", userID)
	middleware.JSONResponse(w, http.StatusOK, models.AnnotationResponse{Success: true, Annotation: a})
}

// Delete handles DELETE /api/annotations/{id}; owner only. The audio blob
// goes with the document.
func (h *AnnotationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	a, ok := h.load(w, r)
	if !ok {
		return
	}
	if a.UserID != middleware.UserID(r) {
		middleware.ErrorResponse(w, http.StatusForbidden, "Only the owner can delete an annotation")
		return
	}

	if err := h.store.DeleteAnnotation(r.Context(), a.ID); err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to delete annotation", err)
		return
	}
	h.discardAudio(context.WithoutCancel(r.Context()), a.Audio)

	slog.Info("annotation deleted", "annotation_id", a.ID, "user_id", a.UserID)
	middleware.JSONResponse(w, http.StatusOK, models.MessageResponse{Success: true, Message: "Annotation deleted"})
}

// ByTooth handles GET /api/annotations/tooth/{system}/{value}. Optional
// studyInstanceUID narrows it to one study.
func (h *AnnotationHandler) ByTooth(w http.ResponseWriter, r *http.Request) {
	system, err := dental.ParseSystem(r.PathValue("system"))
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "system must be FDI or Universal")
		return
	}
	tooth := dental.ToothSelection{System: system, Value: strings.ToUpper(r.PathValue("value"))}
	if err := tooth.Validate(); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	annotations, _, err := h.store.ListAnnotations(r.Context(), store.AnnotationFilter{
		ViewerID:         middleware.UserID(r),
		StudyInstanceUID: r.URL.Query().Get("studyInstanceUID"),
		ToothSystem:      string(tooth.System),
		ToothValue:       tooth.Value,
	})
	if err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to list annotations", err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.AnnotationListResponse{Success: true, Annotations: annotations})
}

// Stats handles GET /api/annotations/stats/{studyUID}
func (h *AnnotationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.AnnotationStats(r.Context(), middleware.UserID(r), r.PathValue("studyUID"))
	if err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to compute annotation stats", err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.AnnotationStatsResponse{Success: true, Stats: stats})
}

// Audio handles GET /api/annotations/audio/{filename}. Disk-backed blobs
// support range requests.
func (h *AnnotationHandler) Audio(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")
	if !attachments.ValidName(filename) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Audio not found")
		return
	}

	a, err := h.store.GetAnnotationByAudio(r.Context(), filename)
	if errors.Is(err, store.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Audio not found")
		return
	}
	if err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to load audio", err)
		return
	}
	if !a.CanRead(middleware.UserID(r)) {
		middleware.ErrorResponse(w, http.StatusForbidden, "Access denied")
		return
	}

	obj, err := h.files.Open(r.Context(), filename)
	if errors.Is(err, attachments.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "Audio not found")
		return
	}
	if err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to open audio", err)
		return
	}
	defer obj.Body.Close()

	contentType := a.Audio.MimeType
	if contentType == "" {
		contentType = obj.ContentType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": a.Audio.OriginalName}))

	if rs, ok := obj.Body.(io.ReadSeeker); ok {
		http.ServeContent(w, r, filename, a.UpdatedAt, rs)
		return
	}
	if obj.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		slog.Warn("audio stream interrupted", "filename", filename, "error", err)
	}
}

// Share handles POST /api/annotations/{id}/share; owner only. Sharing makes
// a private annotation visible to its share list.
func (h *AnnotationHandler) Share(w http.ResponseWriter, r *http.Request) {
	var req models.ShareRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if details := validateRequest(&req); details != nil {
		middleware.ValidationErrorResponse(w, details)
		return
	}

	a, ok := h.load(w, r)
	if !ok {
		return
	}
	userID := middleware.UserID(r)
	if a.UserID != userID {
		middleware.ErrorResponse(w, http.StatusForbidden, "Only the owner can share an annotation")
		return
	}
	if req.UserID == userID {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Cannot share an annotation with yourself")
		return
	}

	_, err := h.store.GetUser(r.Context(), req.UserID)
	if errors.Is(err, store.ErrNotFound) {
		middleware.ErrorResponse(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to share annotation", err)
		return
	}

	now := time.Now().UTC()
	a.Grant(req.UserID, req.Permission, now)
	a.UpdatedAt = now
	if err := h.store.UpdateAnnotation(r.Context(), a); err != nil {
		middleware.InternalError(w, h.cfg.IsDevelopment(), "Failed to share annotation", err)
		return
	}

	slog.Info("annotation shared",
		"annotation_id", a.ID,
		"owner_id", userID,
		"shared_with", req.UserID,
		"permission", req.Permission,
	)
	middleware.JSONResponse(w, http.StatusOK, models.AnnotationResponse{Success: true, Annotation: a})
}
