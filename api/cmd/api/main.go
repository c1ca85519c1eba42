package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"guard-patrol-logistics-system/api/internal/handlers"
	"guard-patrol-logistics-system/api/internal/logistics"
	"guard-patrol-logistics-system/api/internal/middleware"
	"guard-patrol-logistics-system/api/internal/patrol"
	"guard-patrol-logistics-system/api/internal/repos"
	"guard-patrol-logistics-system/shared/authx"
	"guard-patrol-logistics-system/shared/blobx"
	"guard-patrol-logistics-system/shared/cachex"
	"guard-patrol-logistics-system/shared/config"
	"guard-patrol-logistics-system/shared/dbx"
	"guard-patrol-logistics-system/shared/httpx"
	"guard-patrol-logistics-system/shared/logx"
	"guard-patrol-logistics-system/shared/metricsx"
	"guard-patrol-logistics-system/shared/observability"
)

type statusResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Env     string `json:"env,omitempty"`
	Version string `json:"version,omitempty"`
}

func main() {
	cfg, readyProblems := config.Load("api", 8080)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)

	metricsx.Register()

	if cfg.DatabaseURL == "" {
		readyProblems = append(readyProblems, config.Problem{Field: "DATABASE_URL", Message: "DATABASE_URL is required"})
	}

	if cfg.OtelEnabled {
		if shutdown, err := observability.InitTracer(context.Background(), observability.TracerConfig{
			ServiceName: cfg.ServiceName,
			Env:         cfg.Env,
			Endpoint:    cfg.OtelEndpoint,
			Insecure:    cfg.OtelInsecure,
			SampleRatio: cfg.OtelSampleRatio,
		}); err == nil {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	var dbPool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		var err error
		dbPool, err = dbx.NewPool(cfg)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "DATABASE_URL", Message: "failed to connect to database"})
			logger.Error(context.Background(), "db_init_failed", "database init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		}
	}

	var cache *cachex.Client
	if cfg.RedisAddr != "" {
		var err error
		cache, err = cachex.New(cfg)
		if err != nil {
			logger.Warn(context.Background(), "redis_init_failed", "post token cache disabled",
				slog.String("error", err.Error()),
			)
			cache = nil
		}
	}

	blobDir := cfg.BlobDir
	if blobDir == "" {
		blobDir = "data/blobs"
	}
	blobBaseURL := cfg.BlobBaseURL
	if blobBaseURL == "" {
		blobBaseURL = fmt.Sprintf("http://localhost:%d/media", cfg.HTTPPort)
	}
	blobs, err := blobx.NewFSStore(blobDir, blobBaseURL)
	if err != nil {
		readyProblems = append(readyProblems, config.Problem{Field: "BLOB_DIR", Message: "failed to initialize blob store"})
		logger.Error(context.Background(), "blob_init_failed", "blob store init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
	}

	guardsRepo := repos.NewGuardsRepo(dbPool)
	postsRepo := repos.NewPostsRepo(dbPool)
	outboxRepo := repos.NewOutboxRepo(dbPool)
	sessionsRepo := repos.NewSessionsRepo(dbPool, outboxRepo)
	stockRepo := repos.NewStockRepo(dbPool, outboxRepo)
	deliveriesRepo := repos.NewDeliveriesRepo(dbPool, stockRepo, outboxRepo)
	auditRepo := repos.NewAuditRepo(dbPool)

	postCache := patrol.NewCachedPostRegistry(postsRepo, cache, time.Duration(cfg.PostCacheTTLSec)*time.Second, logger)
	patrolManager := patrol.NewManager(postCache, guardsRepo, sessionsRepo, blobs, logger, patrol.ManagerConfig{
		DefaultRadiusM:   cfg.GeofenceRadiusM,
		FixTimeout:       time.Duration(cfg.PatrolFixTimeoutMS) * time.Millisecond,
		MaxFixAge:        time.Duration(cfg.PatrolFixMaxAgeMS) * time.Millisecond,
		EvidenceMaxBytes: int64(cfg.EvidenceMaxBytes),
	})
	logisticsService := logistics.NewService(stockRepo, deliveriesRepo, guardsRepo, postsRepo, blobs, logger)

	var verifier *authx.JWTVerifier
	if cfg.OIDCIssuer != "" && cfg.OIDCAudience != "" {
		verifier, err = authx.NewJWTVerifier(cfg.OIDCIssuer, cfg.OIDCAudience, cfg.OIDCJWKSURL, cfg.JWKSTTLSeconds, cfg.JWTClockSkewSec)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "OIDC_ISSUER", Message: "failed to initialize JWT verifier"})
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ok",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if len(readyProblems) > 0 {
			httpx.WriteError(
				w,
				r,
				http.StatusServiceUnavailable,
				"FAILED_PRECONDITION",
				"service not ready: invalid configuration",
				map[string]any{"problems": readyProblems},
			)
			return
		}
		if err := dbx.Ping(r.Context(), dbPool); err != nil {
			httpx.WriteError(
				w,
				r,
				http.StatusServiceUnavailable,
				"FAILED_PRECONDITION",
				"service not ready: database unavailable",
				map[string]any{"problem": "db_ping_failed"},
			)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ready",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.Handle("GET /metrics", metricsx.Handler())
	// Evidence photos and signatures stored by the FS blob store.
	mux.Handle("GET /media/", http.StripPrefix("/media/", http.FileServer(http.Dir(blobDir))))

	apiHandlers := &handlers.Handlers{
		Log:        logger,
		Guards:     guardsRepo,
		Posts:      postsRepo,
		Sessions:   sessionsRepo,
		Stock:      stockRepo,
		Deliveries: deliveriesRepo,
		Patrol:     patrolManager,
		Logistics:  logisticsService,
		PostCache:  postCache,
	}
	apiHandlers.Register(mux)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})

	skipPublic := func(r *http.Request) bool {
		return r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics" ||
			strings.HasPrefix(r.URL.Path, "/media/")
	}

	handler := httpx.WrapServeMux(mux, notFound)
	handler = middleware.DBRequiredMiddleware{
		Pool: dbPool,
		Skip: skipPublic,
	}.Wrap(handler)
	handler = middleware.AuditMiddleware{
		Enabled: cfg.AuditEnabled,
		Repo:    auditRepo,
		Logger:  logger,
		Skip:    skipPublic,
	}.Wrap(handler)
	handler = middleware.AuthMiddleware{
		Verifier: verifier,
		Skip:     skipPublic,
	}.Wrap(handler)
	handler = middleware.CORSMiddleware{
		AllowCredentials: true,
		MaxAge:           10 * time.Minute,
	}.Wrap(handler)
	handler = middleware.RateLimitMiddleware{
		Limiter: middleware.NewIPRateLimiter(20, 40, 2*time.Minute),
		Skip:    skipPublic,
	}.Wrap(handler)
	handler = httpx.WithTimeout(cfg.RequestTimeout, handler)
	handler = httpx.WithRequestID(handler)
	handler = metricsx.Instrument(handler)
	handler = otelhttp.NewHandler(handler, "http")
	handler = httpx.WithRecover(logger, handler)
	handler = httpx.WithRequestLog(logger, httpx.RequestLogOptions{SkipPaths: map[string]bool{"/healthz": true, "/metrics": true}}, handler)

	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.HTTPPort)),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "service_start", "starting service",
			slog.String("addr", server.Addr),
			slog.Int("http_port", cfg.HTTPPort),
			slog.String("log_level", cfg.LogLevel),
			slog.Int("request_timeout_ms", cfg.RequestTimeoutMS),
			slog.Float64("geofence_radius_m", cfg.GeofenceRadiusM),
		)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info(context.Background(), "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "server_failed", "server failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), "shutdown_failed", "shutdown failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
	}
	if cache != nil {
		_ = cache.Close()
	}
	if dbPool != nil {
		dbPool.Close()
	}
	logger.Info(context.Background(), "service_stop", "service stopped")
}
