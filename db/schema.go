// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Open connects to postgres or sqlite and verifies the connection
func Open(databaseType, url string) (*sql.DB, error) {
	var driver string
	switch databaseType {
	case "postgres":
		driver = "postgres"
	case "sqlite":
		driver = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported SQL database type %q", databaseType)
	}

	conn, err := sql.Open(driver, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == "sqlite" {
		// One writer at a time; also keeps ":memory:" databases on one connection
		conn.SetMaxOpenConns(1)
		if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return conn, nil
}

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(db *sql.DB) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}

// Timestamps are written by the application in UTC; the schema carries no
// clock defaults so it runs unchanged on postgres and sqlite.
const schema = `
-- Users
CREATE TABLE IF NOT EXISTS app_user (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT 'dentist' CHECK (role IN ('dentist', 'hygienist', 'assistant', 'radiologist', 'student', 'admin')),
    profile TEXT NOT NULL DEFAULT '{}',
    preferences TEXT NOT NULL DEFAULT '{}',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    last_login TIMESTAMP,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

-- Refresh Tokens
CREATE TABLE IF NOT EXISTS refresh_token (
    token TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES app_user(id) ON DELETE CASCADE,
    created_at TIMESTAMP NOT NULL,
    expires_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_refresh_token_user_id ON refresh_token(user_id);

-- Viewer States
CREATE TABLE IF NOT EXISTS viewer_state (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    study_instance_uid TEXT NOT NULL,
    session_id TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    study_info TEXT NOT NULL DEFAULT '{}',
    viewport_state TEXT NOT NULL DEFAULT '{}',
    tool_state TEXT NOT NULL DEFAULT '{}',
    measurement_state TEXT NOT NULL DEFAULT '{}',
    dental_state TEXT NOT NULL DEFAULT '{}',
    is_auto_save BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    UNIQUE (user_id, study_instance_uid, session_id)
);

CREATE INDEX IF NOT EXISTS idx_viewer_state_user_updated ON viewer_state(user_id, updated_at);
CREATE INDEX IF NOT EXISTS idx_viewer_state_user_study ON viewer_state(user_id, study_instance_uid);

-- Annotations
CREATE TABLE IF NOT EXISTS annotation (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    study_instance_uid TEXT NOT NULL,
    series_instance_uid TEXT NOT NULL DEFAULT '',
    sop_instance_uid TEXT NOT NULL DEFAULT '',
    measurement_uid TEXT NOT NULL DEFAULT '',
    tooth_system TEXT,
    tooth_value TEXT,
    title TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL DEFAULT 'note' CHECK (category IN ('diagnosis', 'treatment', 'observation', 'note', 'followup')),
    status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('draft', 'active', 'resolved', 'archived')),
    priority TEXT NOT NULL DEFAULT 'medium' CHECK (priority IN ('low', 'medium', 'high', 'urgent')),
    tags TEXT NOT NULL DEFAULT '[]',
    audio_filename TEXT UNIQUE,
    audio_original_name TEXT,
    audio_mime_type TEXT,
    audio_size BIGINT,
    audio_duration REAL,
    is_private BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_annotation_user_id ON annotation(user_id);
CREATE INDEX IF NOT EXISTS idx_annotation_study ON annotation(study_instance_uid);
CREATE INDEX IF NOT EXISTS idx_annotation_tooth ON annotation(tooth_system, tooth_value);

-- Annotation Shares
CREATE TABLE IF NOT EXISTS annotation_share (
    annotation_id TEXT NOT NULL REFERENCES annotation(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    permission TEXT NOT NULL CHECK (permission IN ('read', 'write')),
    shared_at TIMESTAMP NOT NULL,
    PRIMARY KEY (annotation_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_annotation_share_user ON annotation_share(user_id);
`
