package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/coursedesk/coursedesk-api/api/swagger"
	"github.com/coursedesk/coursedesk-api/internal/handler"
	"github.com/coursedesk/coursedesk-api/internal/middleware"
	"github.com/coursedesk/coursedesk-api/internal/models"
	"github.com/coursedesk/coursedesk-api/internal/oauth"
	"github.com/coursedesk/coursedesk-api/internal/ratelimit"
	"github.com/coursedesk/coursedesk-api/internal/repository"
	"github.com/coursedesk/coursedesk-api/internal/service"
	"github.com/coursedesk/coursedesk-api/internal/token"
	"github.com/coursedesk/coursedesk-api/pkg/cache"
	"github.com/coursedesk/coursedesk-api/pkg/config"
	"github.com/coursedesk/coursedesk-api/pkg/database"
	"github.com/coursedesk/coursedesk-api/pkg/logger"
	corsmiddleware "github.com/coursedesk/coursedesk-api/pkg/middleware/cors"
	reqidmiddleware "github.com/coursedesk/coursedesk-api/pkg/middleware/requestid"
)

// @title CourseDesk API
// @version 1.0.0
// @description Authentication and session service for the CourseDesk platform
// @BasePath /api/v1
// @schemes http https

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		if cfg.RateLimit.Backend == config.RateLimitBackendRedis {
			logr.Sugar().Fatalw("redis required for the shared rate limiter", "error", err)
		}
		logr.Sugar().Warnw("redis unavailable, running without cache", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	verifier, err := oauth.NewGoogleVerifier(ctx, cfg.OAuth.GoogleIssuerURL, cfg.OAuth.GoogleClientID, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to init identity verifier", "error", err)
	}

	limiter := newLoginLimiter(ctx, cfg, redisClient, logr)

	issuer := token.NewIssuer(token.Config{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessExpiry,
		RefreshTTL:    cfg.JWT.RefreshExpiry,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
	})

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	ledgerRepo := repository.NewRefreshTokenRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	userSvc := service.NewUserService(userRepo, validate, logr)
	authSvc := service.NewAuthService(verifier, limiter, userSvc, issuer, ledgerRepo, validate, logr, metricsSvc)
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Courses.CacheTTL, logr, redisClient != nil)
	courseSvc := service.NewCourseService(courseRepo, cacheSvc, cfg.Courses.CacheTTL, logr)

	go runLedgerSweep(ctx, authSvc, cfg.RateLimit.SweepInterval, logr)

	authHandler := handler.NewAuthHandler(authSvc, userSvc, handler.CookieSettings{
		Domain: cfg.Cookie.Domain,
		Secure: cfg.Cookie.Secure,
	})
	userHandler := handler.NewUserHandler(userSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	rateLimitHandler := handler.NewRateLimitHandler(limiter)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", authHandler.Logout)
		auth.GET("/me", middleware.Auth(issuer), authHandler.Me)
	}

	users := api.Group("/users", middleware.Auth(issuer))
	{
		users.GET("", middleware.RequireRoles(models.RoleAdmin), userHandler.List)
		users.GET("/:id", middleware.RBAC("Admin", "Teacher", "SELF"), userHandler.Get)
		users.PATCH("/me", userHandler.UpdateProfile)
		users.PUT("/:id/role", middleware.RequireRoles(models.RoleAdmin), userHandler.UpdateRole)
	}

	courses := api.Group("/courses", middleware.Auth(issuer))
	{
		courses.GET("", courseHandler.List)
		courses.GET("/:id", courseHandler.Get)
	}

	admin := api.Group("/admin", middleware.Auth(issuer), middleware.RequireRoles(models.RoleAdmin))
	{
		admin.GET("/ratelimit/:key", rateLimitHandler.Status)
		admin.DELETE("/ratelimit/:key", rateLimitHandler.Clear)
		admin.DELETE("/ratelimit", rateLimitHandler.ClearAll)
		admin.DELETE("/users/:id/sessions", authHandler.RevokeSessions)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

// newLoginLimiter selects the limiter backend. The in-process window only
// bounds attempts per instance; behind more than one replica the effective
// global threshold multiplies, so that combination gets a loud warning.
func newLoginLimiter(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logr *zap.Logger) ratelimit.Limiter {
	if cfg.RateLimit.Backend == config.RateLimitBackendRedis {
		return ratelimit.NewRedisLimiter(redisClient, "login_rl:", cfg.RateLimit.MaxAttempts, cfg.RateLimit.Window)
	}

	if cfg.RateLimit.Replicas > 1 {
		logr.Sugar().Warnw("in-process rate limiter behind multiple replicas; the login threshold is per instance, not global",
			"replicas", cfg.RateLimit.Replicas,
			"effective_max", cfg.RateLimit.MaxAttempts*cfg.RateLimit.Replicas,
		)
	}

	limiter := ratelimit.NewMemoryLimiter(ratelimit.MemoryConfig{
		MaxAttempts:   cfg.RateLimit.MaxAttempts,
		Window:        cfg.RateLimit.Window,
		SweepInterval: cfg.RateLimit.SweepInterval,
		Logger:        logr,
	})
	go limiter.Start(ctx)
	return limiter
}

// runLedgerSweep periodically removes expired refresh token rows. Purely
// operational hygiene; revocation correctness never depends on it.
func runLedgerSweep(ctx context.Context, authSvc *service.AuthService, interval time.Duration, logr *zap.Logger) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			authSvc.CleanupExpired(ctx)
		}
	}
}
