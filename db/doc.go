// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db opens SQL connections and creates the schema.

# Connections

Open registers both drivers and picks one by database type:

	conn, err := db.Open("postgres", "postgres://...")  // github.com/lib/pq
	conn, err := db.Open("sqlite", "dental_viewer.db")   // modernc.org/sqlite

sqlite connections are limited to one open connection and have foreign keys
enabled.

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.
The same DDL runs on postgres and sqlite: JSON sub-documents are TEXT columns
and timestamps are supplied by the application.

# Tables

  - app_user: accounts; profile and preferences as JSON text
  - refresh_token: one row per issued refresh token
  - viewer_state: versioned snapshots, unique on (user_id, study_instance_uid, session_id)
  - annotation: notes with tooth columns and optional audio columns
  - annotation_share: per-user read/write grants

# Relationships

	app_user 1──* refresh_token
	annotation 1──* annotation_share

Both foreign keys use ON DELETE CASCADE.

# Indexes

  - viewer_state.(user_id, updated_at) for history and recent studies
  - viewer_state.(user_id, study_instance_uid) for pruning
  - annotation.study_instance_uid, annotation.(tooth_system, tooth_value)
  - annotation.audio_filename (unique) for audio lookups
*/
package db
