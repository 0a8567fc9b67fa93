// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging

Wrap handlers with request logging:

	mux.HandleFunc("GET /health", middleware.WithLogging(handler))

Logs request start (method, path, client_ip) and completion (duration_ms).

# CORS Middleware

Enable cross-origin requests for the viewer frontend:

	server := http.Server{
		Handler: middleware.CORS(cfg.CORSOrigin, mux),
	}

The configured origin is sent as Access-Control-Allow-Origin. With "*" the
request's own Origin is reflected so credentialed requests still work.
Allows methods GET, POST, PUT, DELETE, OPTIONS with headers
Content-Type and Authorization.

# Authentication

RequireAuth verifies the Bearer access token and stores its claims in the
request context:

	mux.HandleFunc("GET /api/auth/profile",
		middleware.WithLogging(middleware.RequireAuth(issuer, h.GetProfile)))

	userID := middleware.UserID(r)

Missing, malformed and expired tokens all answer 401 with a distinct
message.

# JSON Helpers

Write JSON responses:

	middleware.JSONResponse(w, http.StatusOK, data)
	middleware.ErrorResponse(w, http.StatusBadRequest, "message")
	middleware.ValidationErrorResponse(w, details)
	middleware.InternalError(w, cfg.IsDevelopment(), "Failed to save", err)

Every error body has the shape:

	{"success": false, "error": "Bad Request", "message": "...", "details": [...]}

InternalError logs the cause and only includes it in the message in
development.

Parse JSON request bodies:

	var req models.LoginRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

# Client IP Extraction

Get the original client IP (handles X-Forwarded-For, X-Real-IP):

	ip := middleware.GetClientIP(r)

Used in request logs.
*/
package middleware
