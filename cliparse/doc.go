// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

Before falling back to the environment, ParseFlags loads a dotenv file
(github.com/joho/godotenv). Variables already set in the process win over the
file. A missing file is ignored.

# Config Fields

  - Port: Server listen port (default: 5000)
  - DatabaseURL: sqlite path, PostgreSQL DSN or MongoDB URI
  - DatabaseType: sqlite, postgres or mongo (default: sqlite)
  - DatabaseName: MongoDB database name (default: dental_viewer)
  - JWTSecret: HS256 signing secret (required)
  - JWTExpiresIn: access token lifetime (default: 24h)
  - CORSOrigin: allowed browser origin (default: http://localhost:3000)
  - MaxFileSize: audio upload limit in bytes (default: 10 MiB)
  - UploadDir: audio directory for disk storage (default: uploads/audio)
  - AudioStorage: disk or s3 (default: disk)
  - S3Bucket, AWSRegion, AWSEndpoint: S3 audio storage
  - Env: development or production (default: production)

# CLI Flags

	-env-file        Dotenv file (default: .env)
	-p               Server port
	-d               Database URL
	-t               Database type
	-jwt-secret      JWT signing secret
	-jwt-expires-in  Access token lifetime

# Environment Variables

Flags fall back to environment variables:

	PORT            → -p
	DATABASE_URL    → -d (MONGODB_URI is also read for mongo)
	DATABASE_TYPE   → -t
	JWT_SECRET      → -jwt-secret
	JWT_EXPIRES_IN  → -jwt-expires-in

The rest are environment only: DATABASE_NAME, CORS_ORIGIN, MAX_FILE_SIZE,
UPLOAD_DIR, AUDIO_STORAGE, S3_BUCKET, AWS_REGION, AWS_ENDPOINT_URL, APP_ENV.

CLI flags take precedence over environment variables. Durations accept Go
syntax ("90m", "24h") and whole days ("7d").

# Validation

ParseFlags returns an error if:

  - JWT_SECRET is missing
  - postgres or mongo is selected without a database URL
  - AUDIO_STORAGE=s3 without S3_BUCKET
  - a numeric or duration value does not parse
*/
package cliparse
