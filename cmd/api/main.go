package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/marginkit/challenge-go/internal/cache"
	"github.com/marginkit/challenge-go/internal/config"
	"github.com/marginkit/challenge-go/internal/content"
	"github.com/marginkit/challenge-go/internal/handler"
	"github.com/marginkit/challenge-go/internal/localstore"
	"github.com/marginkit/challenge-go/internal/logger"
	"github.com/marginkit/challenge-go/internal/middleware"
	"github.com/marginkit/challenge-go/internal/repository"
	"github.com/marginkit/challenge-go/internal/service"
	"github.com/marginkit/challenge-go/internal/session"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log)

	if err := run(cfg, log); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := localstore.Open(log, cfg.Local.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	origin, err := url.Parse(cfg.Cache.Origin)
	if err != nil {
		return err
	}

	var cacheStorage cache.Storage = store.Cache()
	if cfg.Cache.Storage == "memory" {
		cacheStorage = cache.NewMemoryStorage()
	}

	network := http.DefaultTransport.(*http.Transport).Clone()
	lifecycle := cache.NewLifecycle(log, cacheStorage, network, origin, cfg.Cache.FetchTimeout)
	if err := lifecycle.Restore(ctx); err != nil {
		log.Warn("restoring cache state failed", "error", err)
	}

	router := cache.NewRouter(
		log,
		cache.Rules{BypassHosts: cfg.Cache.BypassHosts, ImmutableHosts: cfg.Cache.ImmutableHosts},
		network, cacheStorage, lifecycle, cfg.Cache.FetchTimeout,
	)

	// Installing a new asset version must not delay serving the current one.
	go func() {
		manifest := cache.Manifest{Version: cfg.Cache.Version, Assets: cfg.Cache.Assets}
		if err := lifecycle.Deploy(ctx, manifest, cfg.Cache.ForceClaim); err != nil {
			log.Warn("cache deploy failed, keeping previous version",
				"version", manifest.Version, "current", lifecycle.Current(), "error", err)
		}
	}()

	db, err := repository.NewDB(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.Database.Migrate {
		if err := repository.Migrate(ctx, db); err != nil {
			log.Warn("database migration failed", "error", err)
		}
	}

	userRepo := repository.NewUserRepository(db)
	checkinRepo := repository.NewCheckinRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	savingsRepo := repository.NewSavingsRepository(db)
	hub := session.NewHub()

	sessions := service.NewSessionManager(log, hub, checkinRepo, store.Drafts())
	go sessions.Run(ctx)

	authService := service.NewAuthService(log, userRepo, hub, cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry)
	progressService := service.NewProgressService(userRepo, checkinRepo)
	assessmentService := service.NewAssessmentService(log, assessmentRepo)
	savingsService := service.NewSavingsService(log, savingsRepo)
	catalog := content.NewCatalog(
		&http.Client{Transport: router, Timeout: cfg.Cache.FetchTimeout},
		origin.JoinPath("content", "days.json").String(),
	)

	authHandler := handler.NewAuthHandler(authService)
	checkinHandler := handler.NewCheckinHandler(sessions)
	contentHandler := handler.NewContentHandler(catalog)
	progressHandler := handler.NewProgressHandler(progressService)
	assessmentHandler := handler.NewAssessmentHandler(assessmentService)
	savingsHandler := handler.NewSavingsHandler(savingsService)

	proxy := httputil.NewSingleHostReverseProxy(origin)
	proxy.Transport = router
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.WarnContext(r.Context(), "app origin unreachable and nothing cached", "path", r.URL.Path, "error", err)
		w.WriteHeader(http.StatusBadGateway)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(ctx, 5, 10))
		r.Post("/api/v1/auth/register", authHandler.HandleRegister)
		r.Post("/api/v1/auth/login", authHandler.HandleLogin)
	})

	r.Get("/api/v1/days", contentHandler.HandleListDays)
	r.Get("/api/v1/days/{day}", contentHandler.HandleGetDay)

	r.Group(func(r chi.Router) {
		r.Use(middleware.JWTAuth(cfg.Auth.JWTSecret))
		r.Post("/api/v1/auth/logout", authHandler.HandleLogout)
		r.Get("/api/v1/auth/me", authHandler.HandleMe)

		r.Get("/api/v1/checkins/{day}", checkinHandler.HandleEnterDay)
		r.Put("/api/v1/checkins/{day}/draft", checkinHandler.HandleFieldChange)
		r.Post("/api/v1/checkins/{day}", checkinHandler.HandleSubmit)

		r.Get("/api/v1/progress", progressHandler.HandleProgress)

		r.Get("/api/v1/assessments/questions", assessmentHandler.HandleQuestions)
		r.Get("/api/v1/assessments/comparison", assessmentHandler.HandleCompare)
		r.Get("/api/v1/assessments/{kind}", assessmentHandler.HandleGet)
		r.Put("/api/v1/assessments/{kind}", assessmentHandler.HandleSave)

		r.Get("/api/v1/savings", savingsHandler.HandleSummary)
		r.Post("/api/v1/savings", savingsHandler.HandleAdd)
	})

	r.Handle("/*", proxy)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Server.Port, "env", cfg.Server.Env,
			"origin", origin.String(), "cache_version", cfg.Cache.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	err = srv.Shutdown(shutdownCtx)
	router.Wait()
	return err
}
