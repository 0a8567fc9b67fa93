// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types for the API.

# Domain Types

Persisted records, tagged for both JSON and BSON:

  - User, Profile, Preferences: accounts; PasswordHash never serializes to JSON
  - RefreshToken: opaque token with a 7 day expiry
  - ViewerState: versioned viewer snapshot per (user, study, session), holding
    StudyInfo, ViewportState, ToolState, MeasurementState and DentalState
  - Annotation: tooth-tagged note with optional AudioAttachment and a
    per-user Share list

# Access Control

Annotation.PermissionFor resolves what a user may do:

	owner            -> write
	isPrivate        -> nothing
	share list entry -> its permission (read or write)
	otherwise        -> nothing

Grant upserts a share and clears isPrivate, so a shared annotation is always
reachable by the users it was shared with.

# Request Types

Request structs carry validator tags (github.com/go-playground/validator/v10);
handlers run them through middleware.Validate and answer 400 with per-field
details on failure. Update requests use pointer fields so absent keys leave
the stored value alone.

# Response Types

Every response carries a success flag. ErrorResponse is:

	{"success": false, "error": "Bad Request", "message": "...", "details": [{"field": "...", "message": "..."}]}

# Constants

  - Roles: dentist, hygienist, assistant, radiologist, student, admin
  - Categories: diagnosis, treatment, observation, note, followup
  - Statuses: draft, active, resolved, archived
  - Priorities: low, medium, high, urgent
  - Permissions: read, write
*/
package models
