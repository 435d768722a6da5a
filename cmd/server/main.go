package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/chi-demo/app"
	dbutils "github.com/tendant/db-utils/db"
	"github.com/tendant/simple-lms/pkg/account"
	"github.com/tendant/simple-lms/pkg/admin"
	adminapi "github.com/tendant/simple-lms/pkg/admin/api"
	"github.com/tendant/simple-lms/pkg/audit"
	"github.com/tendant/simple-lms/pkg/bootstrap"
	"github.com/tendant/simple-lms/pkg/client"
	"github.com/tendant/simple-lms/pkg/config"
	"github.com/tendant/simple-lms/pkg/device"
	"github.com/tendant/simple-lms/pkg/devicepolicy"
	"github.com/tendant/simple-lms/pkg/login"
	loginapi "github.com/tendant/simple-lms/pkg/login/api"
	"github.com/tendant/simple-lms/pkg/metrics"
	"github.com/tendant/simple-lms/pkg/ratelimit"
	"github.com/tendant/simple-lms/pkg/sessions"
	"github.com/tendant/simple-lms/pkg/settings"
	"github.com/tendant/simple-lms/pkg/tokengenerator"
)

type LogConfig struct {
	Format string `env:"LOG_FORMAT" env-default:"text"`
	Level  string `env:"LOG_LEVEL" env-default:"info"`
}

type BootstrapConfig struct {
	AdminEmail    string `env:"ADMIN_EMAIL" env-default:""`
	AdminPassword string `env:"ADMIN_PASSWORD" env-default:""`
}

type Config struct {
	Persistence     string `env:"PERSISTENCE" env-default:"postgres"`
	CookieSecure    bool   `env:"COOKIE_SECURE" env-default:"false"`
	Log             LogConfig
	Database        config.DatabaseConfig
	JWT             config.JWTConfig
	Redis           config.RedisConfig
	DevicePolicy    config.DevicePolicyConfig
	RateLimit       config.RateLimitConfig
	BootstrapConfig BootstrapConfig
}

func main() {
	loadEnvFile()

	cfg := Config{}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed to read configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.Log)

	if err := cfg.DevicePolicy.Validate(); err != nil {
		slog.Error("Invalid device policy configuration", "error", err)
		os.Exit(1)
	}
	accessExpiry, err := cfg.JWT.ParseAccessTokenExpiry()
	if err != nil {
		slog.Error("Invalid JWT configuration", "error", err)
		os.Exit(1)
	}
	refreshExpiry, err := cfg.JWT.ParseRefreshTokenExpiry()
	if err != nil {
		slog.Error("Invalid JWT configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if cfg.Persistence == "postgres" || cfg.DevicePolicy.SettingsBackend == config.SettingsBackendPostgres {
		dbConfig := cfg.Database.ToDbConfig()
		pool, err = dbutils.NewDbPool(ctx, dbConfig)
		if err != nil {
			slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User, "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		slog.Info("Database connected", "database", dbConfig.Database, "host", dbConfig.Host)
	}

	// Repositories
	var (
		accountRepo account.Repository
		credRepo    sessions.Repository
		auditSink   audit.Sink
	)
	deviceRepo, err := device.NewRepository(cfg.Persistence, device.RepositoryConfig{Pool: poolOrNil(pool)})
	if err != nil {
		slog.Error("Failed creating device repository", "error", err)
		os.Exit(1)
	}
	if pool != nil && cfg.Persistence == "postgres" {
		accountRepo = account.NewPostgresRepository(pool)
		credRepo = sessions.NewPostgresRepository(pool)
		auditSink = audit.NewPostgresSink(pool)
	} else {
		slog.Warn("Using in-memory persistence; state is lost on restart")
		accountRepo = account.NewInMemRepository()
		credRepo = sessions.NewInMemRepository()
		auditSink = audit.SlogSink{}
	}

	settingsStore, closeStore, err := newSettingsStore(ctx, cfg, pool)
	if err != nil {
		slog.Error("Failed creating settings store", "backend", cfg.DevicePolicy.SettingsBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// Instrumentation
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	recorder := audit.NewAsyncRecorder(auditSink, cfg.DevicePolicy.AuditBuffer)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := recorder.Close(shutdownCtx); err != nil {
			slog.Warn("Audit recorder did not drain", "error", err)
		}
	}()

	// Services
	accountService := account.NewService(accountRepo)
	policy := settings.NewService(settingsStore, settings.Policy{
		MaxDevicesPerStudent: cfg.DevicePolicy.DefaultMaxDevices,
		EnforcementEnabled:   cfg.DevicePolicy.DefaultEnforcement,
	})
	tokens := tokengenerator.NewJwtTokenGenerator(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience)
	issuer := sessions.NewIssuer(credRepo, tokens,
		sessions.WithAccessTokenExpiry(accessExpiry),
		sessions.WithRefreshTokenExpiry(refreshExpiry),
	)
	engine := devicepolicy.NewEngine(deviceRepo, policy, issuer, devicepolicy.WithAudit(recorder), devicepolicy.WithMetrics(m))
	validator := devicepolicy.NewValidator(policy, issuer, devicepolicy.WithAudit(recorder), devicepolicy.WithMetrics(m))
	loginService := login.NewService(accountService, engine, issuer, login.WithAudit(recorder))
	adminService := admin.NewService(accountService, deviceRepo, issuer, policy, admin.WithAudit(recorder), admin.WithMetrics(m))

	createInitialAdmin(ctx, accountService, cfg.BootstrapConfig)

	go issuer.RunSweeper(ctx, cfg.DevicePolicy.SweepInterval)
	throttle := ratelimit.NewMiddleware(cfg.RateLimit)
	go throttle.Run(ctx)

	// HTTP
	loginHandle := loginapi.NewHandle(loginService,
		loginapi.WithDeviceHeader(cfg.DevicePolicy.DeviceHeader),
		loginapi.WithSecureCookies(cfg.CookieSecure),
	)
	adminHandle := adminapi.NewHandle(adminService)
	tokenAuth := client.NewJWTAuth(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience)

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	server.R.Handle("/metrics", metrics.Handler(registry))
	server.R.Group(func(r chi.Router) {
		r.Use(middleware.RealIP)
		r.Use(m.Instrument)

		r.Mount("/api/auth", loginHandle.Routes(throttle.Handler))

		r.Group(func(r chi.Router) {
			r.Use(client.Authenticator(tokenAuth))
			r.Use(validator.Middleware(cfg.DevicePolicy.DeviceHeader, deviceRepo))

			r.Get("/api/me", loginHandle.Me)

			r.Group(func(r chi.Router) {
				r.Use(client.RequireRole(account.RoleAdmin))
				r.Mount("/api/admin/devices", adminHandle.Routes())
			})
		})
	})

	slog.Info("Simple LMS service ready",
		"persistence", cfg.Persistence,
		"settings", cfg.DevicePolicy.SettingsBackend,
		"deviceHeader", cfg.DevicePolicy.DeviceHeader,
	)
	server.Run()
}

// poolOrNil keeps a nil *pgxpool.Pool from becoming a non-nil device.Pool interface
func poolOrNil(pool *pgxpool.Pool) device.Pool {
	if pool == nil {
		return nil
	}
	return pool
}

func newSettingsStore(ctx context.Context, cfg Config, pool *pgxpool.Pool) (settings.Store, func(), error) {
	noop := func() {}
	switch cfg.DevicePolicy.SettingsBackend {
	case config.SettingsBackendPostgres:
		if pool == nil {
			return nil, noop, errors.New("postgres settings backend needs a database")
		}
		return settings.NewPostgresStore(pool), noop, nil
	case config.SettingsBackendRedis:
		if !cfg.Redis.Enabled() {
			return nil, noop, errors.New("REDIS_ADDR is required for the redis settings backend")
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, noop, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		slog.Info("Redis connected", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
		return settings.NewRedisStore(rdb), func() { _ = rdb.Close() }, nil
	default:
		slog.Warn("Using in-memory settings; policy changes are not shared between instances")
		return settings.NewInMemStore(), noop, nil
	}
}

func createInitialAdmin(ctx context.Context, accounts *account.Service, cfg BootstrapConfig) {
	result, err := bootstrap.BootstrapAdmin(ctx, bootstrap.AdminBootstrapConfig{
		AdminEmail:    cfg.AdminEmail,
		AdminPassword: cfg.AdminPassword,
		Accounts:      accounts,
	})
	if err != nil {
		slog.Error("Admin bootstrap failed", "email", cfg.AdminEmail, "error", err)
		return
	}
	bootstrap.PrintBootstrapResult(result)
	bootstrap.LogBootstrapSummary(result)
}

func setupLogger(cfg LogConfig) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{AddSource: true, Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() {
	envFile := ".env"
	if execPath, err := os.Executable(); err == nil {
		if candidate := filepath.Join(filepath.Dir(execPath), ".env"); fileExists(candidate) {
			envFile = candidate
		}
	}
	if !fileExists(envFile) {
		return
	}
	if err := godotenv.Load(envFile); err != nil {
		slog.Warn("Failed to load .env file", "path", envFile, "error", err)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
