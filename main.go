package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/danielhkuo/dental-viewer/attachments"
	"github.com/danielhkuo/dental-viewer/auth"
	"github.com/danielhkuo/dental-viewer/cliparse"
	"github.com/danielhkuo/dental-viewer/db"
	"github.com/danielhkuo/dental-viewer/live"
	"github.com/danielhkuo/dental-viewer/middleware"
	"github.com/danielhkuo/dental-viewer/router"
	"github.com/danielhkuo/dental-viewer/store"
	"github.com/danielhkuo/dental-viewer/store/mongostore"
	"github.com/danielhkuo/dental-viewer/store/sqlstore"
)

const shutdownTimeout = 10 * time.Second

func newLogger(cfg cliparse.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openStore connects the configured database and prepares its schema or
// indexes
func openStore(ctx context.Context, cfg cliparse.Config) (store.Store, error) {
	if cfg.DatabaseType == cliparse.DatabaseMongo {
		ms, err := mongostore.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseName)
		if err != nil {
			return nil, err
		}
		return ms, nil
	}

	conn, err := db.Open(cfg.DatabaseType, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if err := db.CreateSchema(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("schema creation failed: %w", err)
	}
	return sqlstore.New(conn), nil
}

func openAttachments(ctx context.Context, cfg cliparse.Config) (attachments.Storage, error) {
	if cfg.AudioStorage == cliparse.StorageS3 {
		client, err := attachments.NewS3Client(ctx, cfg.AWSRegion, cfg.AWSEndpoint)
		if err != nil {
			return nil, err
		}
		return attachments.NewS3Storage(client, cfg.S3Bucket), nil
	}
	disk, err := attachments.NewDiskStorage(cfg.UploadDir)
	if err != nil {
		return nil, err
	}
	return disk, nil
}

func main() {
	var err error

	// Parse configuration
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		slog.Error("logger setup failed", "error", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect storage
	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("store setup failed", zap.String("databaseType", cfg.DatabaseType), zap.Error(err))
		os.Exit(1)
	}
	defer st.Close(context.Background())
	logger.Info("store ready", zap.String("databaseType", cfg.DatabaseType))

	files, err := openAttachments(ctx, cfg)
	if err != nil {
		logger.Error("audio storage setup failed", zap.String("audioStorage", cfg.AudioStorage), zap.Error(err))
		os.Exit(1)
	}

	// Live viewer channel
	hub := live.NewHub(auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiresIn), cfg.CORSOrigin, logger.Named("live"))
	go hub.Run(ctx)

	// Create router
	mux := router.NewRouter(st, files, hub, cfg)

	// Create server
	server := http.Server{
		Handler:           middleware.CORS(cfg.CORSOrigin, mux),
		Addr:              ":" + strconv.Itoa(cfg.Port),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// signal.Notify requires the channel to be buffered
	ctrlc := make(chan os.Signal, 1)
	signal.Notify(ctrlc, os.Interrupt, syscall.SIGTERM)
	go func() {
		// Wait for Ctrl-C signal
		<-ctrlc
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed", zap.Error(err))
			server.Close()
		}
	}()

	// Start server
	logger.Info("Listening", zap.Int("port", cfg.Port), zap.String("env", cfg.Env))
	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logger.Error("Server closed", zap.Error(err))
	} else {
		logger.Info("Server closed")
	}
}
