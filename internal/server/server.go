package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/secure-assignment/apiserver/config"
	"github.com/secure-assignment/apiserver/internal/crypto"
	"github.com/secure-assignment/apiserver/internal/db"
	"github.com/secure-assignment/apiserver/internal/handlers"
	"github.com/secure-assignment/apiserver/internal/mq"
	"github.com/secure-assignment/apiserver/internal/services"
	"github.com/secure-assignment/apiserver/internal/storage"
	"github.com/secure-assignment/apiserver/internal/store"
	"github.com/secure-assignment/apiserver/internal/token"
	"github.com/secure-assignment/apiserver/internal/totp"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     *mq.MQ
}

// New constructs a Server: database, object storage, optional audit broker,
// services, and routes. Secrets are validated here, once, and injected.
// A nil logger falls back to slog.Default.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	systemKey, err := crypto.ParseKey(strings.TrimSpace(cfg.SystemKey))
	if err != nil {
		return nil, fmt.Errorf("SYSTEM_KEY: %w", err)
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	blobs, err := newStorage(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	broker, err := newBroker(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	audit := mq.NewAuditPublisher(broker, logger)

	userRepo := store.NewUserRepository(dbConn)
	assignmentRepo := store.NewAssignmentRepository(dbConn)
	submissionRepo := store.NewSubmissionRepository(dbConn)

	issuer := token.NewIssuer(cfg.JWTSecret, token.DefaultTTL)
	totpService := totp.NewService(cfg.MFAIssuer)

	userService := services.NewUserService(userRepo, submissionRepo, blobs, totpService, issuer, audit, logger)
	assignmentService := services.NewAssignmentService(assignmentRepo, submissionRepo, blobs, audit, logger)
	submissionService := services.NewSubmissionService(submissionRepo, assignmentRepo, blobs, systemKey, audit, logger)

	authMiddleware := handlers.RequireAuth(issuer)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, userService, authMiddleware)
	})
	router.Route("/assignments", func(r chi.Router) {
		handlers.AssignmentRouter(r, assignmentService, submissionService, authMiddleware)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		broker:     broker,
	}, nil
}

func newStorage(ctx context.Context, cfg config.Config) (*storage.Storage, error) {
	switch cfg.StorageBackend {
	case config.StorageBackendMinio:
		backend, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, err
		}
		return storage.NewStorage(backend), nil
	case config.StorageBackendGCS:
		backend, err := storage.NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		return storage.NewStorage(backend), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// newBroker returns nil when no MQ backend is configured; audit events then
// degrade to server logs only.
func newBroker(ctx context.Context, cfg config.Config) (*mq.MQ, error) {
	switch cfg.MQBackend {
	case config.MQBackendNone:
		return nil, nil
	case config.MQBackendRabbitMQ:
		backend, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return mq.New(backend), nil
	case config.MQBackendPubSub:
		backend, err := mq.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return mq.New(backend), nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.MQBackend)
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.broker != nil {
		_ = s.broker.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}
