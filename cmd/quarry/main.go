package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/quarry-hq/quarry/internal/app"
	"github.com/quarry-hq/quarry/internal/auth"
	"github.com/quarry-hq/quarry/internal/authz"
	"github.com/quarry-hq/quarry/internal/comments"
	"github.com/quarry-hq/quarry/internal/nav"
	"github.com/quarry-hq/quarry/internal/permissions"
	"github.com/quarry-hq/quarry/internal/projects"
	"github.com/quarry-hq/quarry/internal/roles"
	"github.com/quarry-hq/quarry/internal/tickets"
	"github.com/quarry-hq/quarry/internal/token"
	"github.com/quarry-hq/quarry/internal/users"
)

func main() {
	if app.InTestMode() {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	tokens, err := token.NewService(cfg.JWTSecret, cfg.JWTExpiry, token.NewRedisDenylist(redisClient))
	if err != nil {
		logger.Error("token service", slog.Any("error", err))
		os.Exit(1)
	}

	validate := validator.New()

	userRepo := users.NewRepository(dbpool)
	roleRepo := roles.NewRepository(dbpool)
	permRepo := permissions.NewRepository(dbpool)
	projectRepo := projects.NewRepository(dbpool)
	ticketRepo := tickets.NewRepository(dbpool)
	commentRepo := comments.NewRepository(dbpool)

	decider := authz.NewDecider(ticketRepo, commentRepo, logger)

	authService := auth.NewService(userRepo, roleRepo, tokens, logger)
	authHandler := auth.NewHandler(authService, validate)

	userService := users.NewService(userRepo, roleRepo, permRepo, logger)
	userHandler := users.NewHandler(userService, decider, validate)

	roleService := roles.NewService(roleRepo, logger)
	roleHandler := roles.NewHandler(roleService, validate)

	permService := permissions.NewService(permRepo, logger)
	permHandler := permissions.NewHandler(permService, validate)

	projectService := projects.NewService(projectRepo, logger)
	projectHandler := projects.NewHandler(projectService, validate)

	ticketService := tickets.NewService(ticketRepo, decider, logger)
	ticketHandler := tickets.NewHandler(ticketService, validate)

	commentService := comments.NewService(commentRepo, decider, logger)
	commentHandler := comments.NewHandler(commentService, validate)

	registry := nav.Build([]nav.Registration{
		users.NavRegistration(),
		roles.NavRegistration(),
		permissions.NavRegistration(),
		projects.NavRegistration(),
		tickets.NavRegistration(),
		comments.NavRegistration(),
	})
	navHandler := nav.NewHandler(registry)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthMiddleware:     authService.Middleware,
		AuthHandler:        authHandler,
		NavHandler:         navHandler,
		UsersHandler:       userHandler,
		RolesHandler:       roleHandler,
		PermissionsHandler: permHandler,
		ProjectsHandler:    projectHandler,
		TicketsHandler:     ticketHandler,
		CommentsHandler:    commentHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
