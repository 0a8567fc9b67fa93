// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the dental viewer API server.

The server backs a dental mode for a DICOM web viewer: accounts, versioned
viewer-state snapshots, study annotations with voice notes, and a live
WebSocket channel that runs the dental measurement extension next to an open
viewer.

# Starting the Server

Configuration comes from CLI flags, the environment, or a .env file:

	JWT_SECRET=... go run .

Or with flags:

	go run . -p 5000 -t postgres -d "postgres://..." --jwt-secret dev

# Configuration

Required settings:

  - JWT_SECRET (--jwt-secret): access token signing secret
  - DATABASE_URL (-d): required for postgres and mongo; sqlite defaults to dental_viewer.db

Optional settings:

  - PORT (-p): server port (default: 5000)
  - DATABASE_TYPE (-t): sqlite, postgres or mongo (default: sqlite)
  - DATABASE_NAME: mongo database name (default: dental_viewer)
  - JWT_EXPIRES_IN: access token lifetime (default: 24h)
  - CORS_ORIGIN: allowed browser origin (default: http://localhost:3000)
  - MAX_FILE_SIZE: audio upload limit in bytes (default: 10MB)
  - AUDIO_STORAGE: disk or s3 (default: disk)
  - UPLOAD_DIR, S3_BUCKET, AWS_REGION, AWS_ENDPOINT_URL
  - APP_ENV: development exposes error details (default: production)

# Architecture

  - dental: tooth numbering, presets, measurement enrichment and export
  - extension: viewer extension and mode registration
  - live: WebSocket sessions driving the dental mode
  - handlers: HTTP request handlers (auth, viewer state, annotations, dental)
  - router: Route definitions using Go 1.22+ routing
  - middleware: CORS, logging, bearer auth, JSON helpers
  - store: sqlstore (postgres, sqlite) and mongostore back the same interface
  - attachments: audio files on disk or in S3
  - models, auth, db, cliparse

See package documentation for each component.
*/
package main
