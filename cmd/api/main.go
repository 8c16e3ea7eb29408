package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"grievance-management-api/authz"
	"grievance-management-api/config"
	"grievance-management-api/controllers"
	"grievance-management-api/events"
	"grievance-management-api/middleware"
	"grievance-management-api/ratelimit"
	"grievance-management-api/routes"
	"grievance-management-api/services"
	"grievance-management-api/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logFile, logWriter := config.InitLogging(cfg.Logging)
	if logFile != nil {
		defer logFile.Close()
	}
	middleware.SetExposeErrors(!cfg.IsProduction())

	if cfg.Server.GinMode == gin.ReleaseMode || cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = logWriter

	db, err := config.OpenDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer config.CloseDB(db)

	if cfg.Database.AutoMigrate {
		if err := config.AutoMigrate(db); err != nil {
			log.Fatal().Err(err).Msg("Database migration failed")
		}
	}

	store := storage.New(db)
	files, err := storage.NewDiskFileStore(cfg.Uploads.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Uploads.Path).Msg("Failed to prepare upload directory")
	}

	policy, err := authz.NewPolicy()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load authorization policy")
	}

	bus, err := events.NewBus(events.DefaultConfig(), log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create event bus")
	}

	limits := services.UploadLimits{MaxFileSize: cfg.Uploads.MaxFileSize, MaxFiles: cfg.Uploads.MaxFiles}
	auth := services.NewAuthService(store, services.AuthConfig{
		Secret:      cfg.Auth.JWTSecret,
		ExpireHours: cfg.Auth.JWTExpireHours,
		BcryptCost:  cfg.Auth.BcryptRounds,
	})
	categoryCache := services.NewCategoryCache(store)
	grievances := services.NewGrievanceService(store, store, store, files, bus, policy, limits)
	notifications := services.NewNotificationService(store, store, config.NewMailer(cfg.SMTP))
	notifications.Register(bus)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bus.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start event bus")
	}

	memLimiter := ratelimit.NewMemoryLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window())
	defer memLimiter.Stop()
	var limiter ratelimit.Limiter = memLimiter
	var redisClient *redis.Client
	if cfg.RateLimit.RedisURL != "" {
		redisClient, err = ratelimit.NewRedisClient(cfg.RateLimit.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("Invalid rate limit redis URL, using in-memory limiter")
		} else {
			limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window(), memLimiter)
		}
	}

	router := routes.NewRouter(routes.Options{
		Auth:           controllers.NewAuthController(auth),
		Grievances:     controllers.NewGrievanceController(grievances, limits),
		Users:          controllers.NewUserController(services.NewUserService(store, auth, files, policy)),
		Categories:     controllers.NewCategoryController(services.NewCategoryService(store, categoryCache, policy)),
		Notifications:  controllers.NewNotificationController(notifications),
		Dashboard:      controllers.NewDashboardController(services.NewDashboardService(store, categoryCache, store, policy, cfg.Location())),
		Sessions:       auth,
		Readiness:      store,
		Limiter:        limiter,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		UploadDir:      files.Root(),
		LogPath:        cfg.Logging.File,
		Version:        cfg.Server.Version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", cfg.Server.Port).
			Str("environment", cfg.Server.Environment).
			Str("rate_limit_backend", limiter.Backend()).
			Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shut down")
	}
	if err := bus.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close event bus")
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
	log.Info().Msg("Server stopped")
}
