// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the dental viewer API.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	mux := router.NewRouter(st, files, hub, cfg)

A nil hub leaves the live channel unregistered.

# Endpoints

Health:

	GET /health

Auth:

	POST /api/auth/register
	POST /api/auth/login
	POST /api/auth/refresh
	GET  /api/auth/profile   (bearer)
	PUT  /api/auth/profile   (bearer)
	POST /api/auth/logout    (bearer)

Viewer state (bearer):

	POST   /api/viewer-state/save
	POST   /api/viewer-state/auto-save
	GET    /api/viewer-state
	GET    /api/viewer-state/history
	GET    /api/viewer-state/recent-studies
	DELETE /api/viewer-state/{id}

Annotations (bearer):

	POST   /api/annotations                          - JSON or multipart with an audio part
	GET    /api/annotations                          - filtered, paginated list
	GET    /api/annotations/{id}
	PUT    /api/annotations/{id}
	DELETE /api/annotations/{id}
	POST   /api/annotations/{id}/share
	GET    /api/annotations/tooth/{system}/{value}
	GET    /api/annotations/stats/{studyUID}
	GET    /api/annotations/audio/{filename}

Dental (public):

	GET  /api/dental/presets
	GET  /api/dental/hanging-protocol
	GET  /api/dental/manifest
	POST /api/dental/measurements/enrich
	POST /api/dental/measurements/export
	GET  /api/dental/teeth/convert
	GET  /api/dental/teeth/{system}

Live (token in Authorization header or ?token=):

	GET /api/live
*/
package router
