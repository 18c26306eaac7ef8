package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"audiovault/cache"
	"audiovault/config"
	"audiovault/core/audio"
	"audiovault/core/identity"
	"audiovault/core/ingest"
	"audiovault/core/library"
	"audiovault/db"
	"audiovault/logger"
	"audiovault/repository"
	"audiovault/storage"
)

// NewRouter registers every endpoint. Each route answers with and without
// the trailing slash.
func NewRouter(h *APIHandler, cfg *config.Config) *mux.Router {
	router := mux.NewRouter()
	router.Use(recoveryMiddleware, accessLogMiddleware, corsMiddleware(cfg.CORSAllowedOrigin))

	routes := []struct {
		path    string
		method  string
		handler http.HandlerFunc
	}{
		{"/users/", http.MethodPost, h.CreateUserHandler},
		{"/login/", http.MethodPost, h.LoginHandler},
		{"/upload-audio/", http.MethodPost, h.UploadAudioHandler},
		{"/record/", http.MethodGet, h.GetRecordHandler},
		{"/health", http.MethodGet, h.HealthHandler},
	}
	for _, rt := range routes {
		// OPTIONS is matched so preflight requests reach the CORS middleware.
		methods := []string{rt.method, http.MethodOptions}
		if rt.method == http.MethodGet {
			methods = append(methods, http.MethodHead)
		}
		router.HandleFunc(rt.path, rt.handler).Methods(methods...)
		if alt := toggleTrailingSlash(rt.path); alt != rt.path {
			router.HandleFunc(alt, rt.handler).Methods(methods...)
		}
	}
	return router
}

// toggleTrailingSlash adds or drops the trailing slash. The root path is
// returned unchanged.
func toggleTrailingSlash(path string) string {
	if path == "/" || path == "" {
		return path
	}
	if len(path) > 1 && path[len(path)-1] == '/' {
		return path[:len(path)-1]
	}
	return path + "/"
}

// Start wires the service together and serves HTTP until SIGINT/SIGTERM.
func Start(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	var recordCache library.RecordCache
	if cfg.RedisEnabled() {
		client, err := cache.Connect(ctx, cfg)
		if err != nil {
			logger.Warn("Redis unavailable, record cache disabled", logger.ErrorField(err))
		} else {
			defer client.Close()
			recordCache = cache.NewRecordCache(client, cfg.RecordCacheTTL)
			logger.Info("Successfully connected to Redis", logger.String("host", cfg.RedisHost))
		}
	}

	if _, err := exec.LookPath(cfg.FFmpegPath); err != nil {
		logger.Warn("ffmpeg not found, uploads will fail", logger.String("ffmpeg_path", cfg.FFmpegPath), logger.ErrorField(err))
	}

	userRepo := repository.NewGormUserRepository(database.Gorm)
	recordRepo := repository.NewGormAudioRecordRepository(database.Gorm)

	identitySvc := identity.NewService(userRepo)
	pipeline := ingest.NewPipeline(identitySvc, audio.NewFFmpegProcessor(cfg.FFmpegPath, cfg.AudioBitrate), store, recordRepo,
		ingest.Options{TempDir: cfg.TempDir, PublicBaseURL: cfg.PublicBaseURL})
	librarySvc := library.NewService(recordRepo, store, recordCache)

	if !cfg.StrictLogin {
		logger.Warn("STRICT_LOGIN is off: /login/ returns a user's token given only the username")
	}

	apiHandler := NewAPIHandler(identitySvc, pipeline, librarySvc, database, cfg)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(apiHandler, cfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute, // large uploads
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting",
			logger.String("addr", cfg.Addr),
			logger.String("public_base_url", cfg.PublicBaseURL),
			logger.String("storage", cfg.StorageBackend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageBackend {
	case config.StorageLocal, "":
		store, err := storage.NewLocalStore(cfg.AudioDir)
		if err != nil {
			return nil, err
		}
		if cfg.WatchStore {
			err := storage.WatchLocal(ctx, store.Root(), func(path string) {
				logger.Warn("[Watch] stored audio removed outside the service; its record can no longer be served",
					logger.String("path", path))
			})
			if err != nil {
				logger.Warn("[Watch] failed to watch audio directory", logger.ErrorField(err))
			}
		}
		return store, nil
	case config.StorageMinio:
		return storage.NewMinioStore(ctx, storage.MinioConfigFrom(cfg))
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
}
