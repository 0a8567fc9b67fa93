package cliparse

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database types
const (
	DatabaseSQLite   = "sqlite"
	DatabasePostgres = "postgres"
	DatabaseMongo    = "mongo"
)

// Audio storage backends
const (
	StorageDisk = "disk"
	StorageS3   = "s3"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Port         int
	DatabaseURL  string
	DatabaseType string
	DatabaseName string
	JWTSecret    string
	JWTExpiresIn time.Duration
	CORSOrigin   string
	MaxFileSize  int64
	UploadDir    string
	AudioStorage string
	S3Bucket     string
	AWSRegion    string
	AWSEndpoint  string
	Env          string
}

// IsDevelopment gates error detail in 500 responses and the dev logger
func (c Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// ParseFlags validates flags and fills the rest from the environment
func ParseFlags(args []string) (Config, error) {
	var cfg Config
	var envFile, jwtExpires string

	fs := flag.NewFlagSet("dental-viewer", flag.ContinueOnError)

	fs.StringVar(&envFile, "env-file", ".env", "Dotenv file to load (missing file is ignored)")

	// Network config (can be CLI args or env)
	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL")
	fs.StringVar(&cfg.DatabaseType, "t", "", "Database type (sqlite, postgres or mongo)")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "JWT signing secret (prefer env)")
	fs.StringVar(&jwtExpires, "jwt-expires-in", "", "Access token lifetime, e.g. 24h or 7d")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if err := loadEnvFile(envFile); err != nil {
		return Config{}, err
	}

	// Fall back to environment variables
	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else {
			cfg.Port = 5000 // default
		}
	}

	if cfg.DatabaseType == "" {
		cfg.DatabaseType = os.Getenv("DATABASE_TYPE")
		if cfg.DatabaseType == "" {
			cfg.DatabaseType = DatabaseSQLite
		}
	}
	switch cfg.DatabaseType {
	case DatabaseSQLite, DatabasePostgres, DatabaseMongo:
	default:
		return Config{}, fmt.Errorf("unsupported database type %q", cfg.DatabaseType)
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" && cfg.DatabaseType == DatabaseMongo {
		cfg.DatabaseURL = os.Getenv("MONGODB_URI")
	}
	if cfg.DatabaseURL == "" {
		if cfg.DatabaseType != DatabaseSQLite {
			return Config{}, errors.New("database URL required (use -d, DATABASE_URL or MONGODB_URI env)")
		}
		cfg.DatabaseURL = "dental_viewer.db"
	}

	cfg.DatabaseName = envOr("DATABASE_NAME", "dental_viewer")

	// Secrets - MUST be provided
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = os.Getenv("JWT_SECRET")
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET required")
	}

	if jwtExpires == "" {
		jwtExpires = envOr("JWT_EXPIRES_IN", "24h")
	}
	ttl, err := ParseDuration(jwtExpires)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JWT_EXPIRES_IN: %w", err)
	}
	cfg.JWTExpiresIn = ttl

	cfg.CORSOrigin = envOr("CORS_ORIGIN", "http://localhost:3000")

	cfg.MaxFileSize = 10 << 20
	if s := os.Getenv("MAX_FILE_SIZE"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, errors.New("invalid MAX_FILE_SIZE env variable")
		}
		cfg.MaxFileSize = n
	}

	cfg.UploadDir = envOr("UPLOAD_DIR", "uploads/audio")

	cfg.AudioStorage = envOr("AUDIO_STORAGE", StorageDisk)
	cfg.S3Bucket = os.Getenv("S3_BUCKET")
	cfg.AWSRegion = envOr("AWS_REGION", "us-east-1")
	cfg.AWSEndpoint = os.Getenv("AWS_ENDPOINT_URL")
	switch cfg.AudioStorage {
	case StorageDisk:
	case StorageS3:
		if cfg.S3Bucket == "" {
			return Config{}, errors.New("S3_BUCKET required when AUDIO_STORAGE=s3")
		}
	default:
		return Config{}, fmt.Errorf("unsupported audio storage %q", cfg.AudioStorage)
	}

	cfg.Env = envOr("APP_ENV", EnvProduction)

	return cfg, nil
}

// ParseDuration accepts time.ParseDuration syntax plus a whole-day "d" suffix
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid day count %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", s)
	}
	return d, nil
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
