// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the dental viewer API.

# Handler Types

Each handler is a struct with its store and config dependencies:

  - AuthHandler: registration, login, token refresh, profile, logout
  - ViewerStateHandler: versioned snapshots of viewer sessions
  - AnnotationHandler: annotations, sharing, audio notes
  - DentalHandler: presets, hanging protocol and measurement helpers

Protected handlers read the caller with middleware.UserID; the router wraps
them in middleware.RequireAuth.

# Validation

Request bodies are validated with go-playground/validator struct tags.
Failures answer 400 with a details list of field paths and messages:

	{"success": false, "error": "Bad Request", "message": "Validation failed",
	 "details": [{"field": "title", "message": "title is required"}]}

Tooth selections are checked against the dental numbering tables as well.

# Viewer State

Saves are keyed by (user, study, session). Each save bumps the version; a
save carrying expectedVersion that no longer matches answers 409. Auto-save
always answers 200 and reports failures in the body.

# Annotations

Visibility: a caller sees their own annotations plus those that are not
private and shared with them. Write access needs ownership or a write share.
Deleting an annotation removes its audio file.
*/
package handlers
