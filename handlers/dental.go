// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/danielhkuo/dental-viewer/cliparse"
	"github.com/danielhkuo/dental-viewer/dental"
	"github.com/danielhkuo/dental-viewer/extension"
	"github.com/danielhkuo/dental-viewer/middleware"
	"github.com/danielhkuo/dental-viewer/models"
)

// DentalHandler serves the read-only catalogue and the stateless
// enrichment endpoints. None of them touch storage.
type DentalHandler struct {
	cfg cliparse.Config
	now func() time.Time
}

func NewDentalHandler(cfg cliparse.Config) *DentalHandler {
	return &DentalHandler{cfg: cfg, now: time.Now}
}

// Presets handles GET /api/dental/presets
func (h *DentalHandler) Presets(w http.ResponseWriter, r *http.Request) {
	middleware.JSONResponse(w, http.StatusOK, models.PresetsResponse{Presets: dental.Presets()})
}

// HangingProtocol handles GET /api/dental/hanging-protocol
func (h *DentalHandler) HangingProtocol(w http.ResponseWriter, r *http.Request) {
	middleware.JSONResponse(w, http.StatusOK, extension.DentalHangingProtocol())
}

// Manifest handles GET /api/dental/manifest
func (h *DentalHandler) Manifest(w http.ResponseWriter, r *http.Request) {
	middleware.JSONResponse(w, http.StatusOK, extension.BuildManifest())
}

// Enrich handles POST /api/dental/measurements/enrich. The measurement is
// treated as just added with the given preset and tooth active.
func (h *DentalHandler) Enrich(w http.ResponseWriter, r *http.Request) {
	var req models.EnrichRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if fe := validateTooth("tooth", req.Tooth); fe != nil {
		middleware.ValidationErrorResponse(w, []models.FieldError{*fe})
		return
	}

	out, changed := dental.EnrichAdded(req.Measurement, dental.State{PresetID: req.PresetID, Tooth: req.Tooth}, h.now())
	middleware.JSONResponse(w, http.StatusOK, models.EnrichResponse{Measurement: out, Changed: changed})
}

// Export handles POST /api/dental/measurements/export
func (h *DentalHandler) Export(w http.ResponseWriter, r *http.Request) {
	var req models.ExportRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.ExportResponse{Rows: dental.Export(req.Measurements)})
}

// ToothValues handles GET /api/dental/teeth/{system}
func (h *DentalHandler) ToothValues(w http.ResponseWriter, r *http.Request) {
	system, err := dental.ParseSystem(r.PathValue("system"))
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "system must be FDI or Universal")
		return
	}
	values, _ := dental.ToothValues(system)
	middleware.JSONResponse(w, http.StatusOK, models.ToothValuesResponse{System: string(system), Values: values})
}

// ConvertTooth handles GET /api/dental/teeth/convert?from=FDI&value=11.
// The target defaults to the other system; ?to= overrides it.
func (h *DentalHandler) ConvertTooth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := dental.ParseSystem(q.Get("from"))
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "from must be FDI or Universal")
		return
	}

	to := dental.SystemUniversal
	if from == dental.SystemUniversal {
		to = dental.SystemFDI
	}
	if raw := q.Get("to"); raw != "" {
		if to, err = dental.ParseSystem(raw); err != nil {
			middleware.ErrorResponse(w, http.StatusBadRequest, "to must be FDI or Universal")
			return
		}
	}

	tooth := dental.ToothSelection{System: from, Value: strings.ToUpper(strings.TrimSpace(q.Get("value")))}
	converted, err := dental.Convert(tooth, to)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.ToothConvertResponse{From: tooth, To: converted})
}
