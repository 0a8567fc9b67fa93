// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"net/http"

	"github.com/danielhkuo/dental-viewer/attachments"
	"github.com/danielhkuo/dental-viewer/auth"
	"github.com/danielhkuo/dental-viewer/cliparse"
	"github.com/danielhkuo/dental-viewer/handlers"
	"github.com/danielhkuo/dental-viewer/live"
	"github.com/danielhkuo/dental-viewer/middleware"
	"github.com/danielhkuo/dental-viewer/store"
)

// NewRouter wires every endpoint. hub may be nil, in which case the live
// channel is not served.
func NewRouter(st store.Store, files attachments.Storage, hub *live.Hub, cfg cliparse.Config) *http.ServeMux {
	mux := http.NewServeMux()
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiresIn)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(st, tokens, cfg)
	viewerStateHandler := handlers.NewViewerStateHandler(st, cfg)
	annotationHandler := handlers.NewAnnotationHandler(st, files, cfg)
	dentalHandler := handlers.NewDentalHandler(cfg)

	public := middleware.WithLogging
	private := func(h http.HandlerFunc) http.HandlerFunc {
		return middleware.WithLogging(middleware.RequireAuth(tokens, h))
	}

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Authentication
	mux.HandleFunc("POST /api/auth/register", public(authHandler.Register))
	mux.HandleFunc("POST /api/auth/login", public(authHandler.Login))
	mux.HandleFunc("POST /api/auth/refresh", public(authHandler.Refresh))
	mux.HandleFunc("GET /api/auth/profile", private(authHandler.GetProfile))
	mux.HandleFunc("PUT /api/auth/profile", private(authHandler.UpdateProfile))
	mux.HandleFunc("POST /api/auth/logout", private(authHandler.Logout))

	// Viewer state persistence
	mux.HandleFunc("POST /api/viewer-state/save", private(viewerStateHandler.Save))
	mux.HandleFunc("POST /api/viewer-state/auto-save", private(viewerStateHandler.AutoSave))
	mux.HandleFunc("GET /api/viewer-state", private(viewerStateHandler.Get))
	mux.HandleFunc("GET /api/viewer-state/history", private(viewerStateHandler.History))
	mux.HandleFunc("GET /api/viewer-state/recent-studies", private(viewerStateHandler.RecentStudies))
	mux.HandleFunc("DELETE /api/viewer-state/{id}", private(viewerStateHandler.Delete))

	// Annotations
	mux.HandleFunc("POST /api/annotations", private(annotationHandler.Create))
	mux.HandleFunc("GET /api/annotations", private(annotationHandler.List))
	mux.HandleFunc("GET /api/annotations/{id}", private(annotationHandler.Get))
	mux.HandleFunc("PUT /api/annotations/{id}", private(annotationHandler.Update))
	mux.HandleFunc("DELETE /api/annotations/{id}", private(annotationHandler.Delete))
	mux.HandleFunc("POST /api/annotations/{id}/share", private(annotationHandler.Share))
	mux.HandleFunc("GET /api/annotations/tooth/{system}/{value}", private(annotationHandler.ByTooth))
	mux.HandleFunc("GET /api/annotations/stats/{studyUID}", private(annotationHandler.Stats))
	mux.HandleFunc("GET /api/annotations/audio/{filename}", private(annotationHandler.Audio))

	// Dental catalogue (public, stateless)
	mux.HandleFunc("GET /api/dental/presets", public(dentalHandler.Presets))
	mux.HandleFunc("GET /api/dental/hanging-protocol", public(dentalHandler.HangingProtocol))
	mux.HandleFunc("GET /api/dental/manifest", public(dentalHandler.Manifest))
	mux.HandleFunc("POST /api/dental/measurements/enrich", public(dentalHandler.Enrich))
	mux.HandleFunc("POST /api/dental/measurements/export", public(dentalHandler.Export))
	mux.HandleFunc("GET /api/dental/teeth/convert", public(dentalHandler.ConvertTooth))
	mux.HandleFunc("GET /api/dental/teeth/{system}", public(dentalHandler.ToothValues))

	// Live viewer channel; the hub authenticates itself and needs the raw
	// ResponseWriter to hijack the connection
	if hub != nil {
		mux.Handle("GET /api/live", hub)
	}

	// Root endpoint
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("dental-viewer API v1"))
	})

	return mux
}
