package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/access-control/internal"
	"github.com/frahmantamala/access-control/internal/audit"
	auditRepo "github.com/frahmantamala/access-control/internal/audit/postgres"
	"github.com/frahmantamala/access-control/internal/auth"
	"github.com/frahmantamala/access-control/internal/core/events"
	"github.com/frahmantamala/access-control/internal/guard"
	"github.com/frahmantamala/access-control/internal/permission"
	permissionRepo "github.com/frahmantamala/access-control/internal/permission/postgres"
	"github.com/frahmantamala/access-control/internal/role"
	roleRepo "github.com/frahmantamala/access-control/internal/role/postgres"
	"github.com/frahmantamala/access-control/internal/session"
	"github.com/frahmantamala/access-control/internal/transport"
	"github.com/frahmantamala/access-control/internal/transport/rest"
	"github.com/frahmantamala/access-control/internal/transport/swagger"
	"github.com/frahmantamala/access-control/internal/user"
	userRepo "github.com/frahmantamala/access-control/internal/user/postgres"
	"github.com/frahmantamala/access-control/pkg/clock"
	"github.com/frahmantamala/access-control/pkg/logger"
	"github.com/frahmantamala/access-control/pkg/metrics"
	"github.com/go-chi/chi"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startHTTPServer(cmd.Context())
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *Databases
	Redis    redis.UniversalClient
	Registry *session.Registry
	Bus      *events.EventBus
	Router   *chi.Mux
	Logger   *slog.Logger
}

func (d *Dependencies) Close() {
	d.Registry.Close()
	d.Bus.Wait()
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("redis close error", "error", err)
		}
	}
	if err := d.DB.Close(); err != nil {
		d.Logger.Error("database close error", "error", err)
	}
}

func startHTTPServer(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initializeDependencies(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		deps.Logger.Info("starting HTTP server", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		deps.Logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	deps.Logger.Info("server stopped")
	return nil
}

func initializeDependencies(ctx context.Context) (*Dependencies, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.LoggerWrapper()

	dbs, err := initDB(cfg.Database)
	if err != nil {
		return nil, err
	}

	rdb, sessionStore, err := initSessionStore(ctx, cfg.Redis)
	if err != nil {
		_ = dbs.Close()
		return nil, err
	}

	clk := clock.System()
	users := userRepo.NewUserRepository(dbs.Gorm)
	roles := roleRepo.NewRoleRepository(dbs.Gorm)
	permService := permission.NewService(permissionRepo.NewPermissionRepository(dbs.Gorm), lg)

	bus := events.NewEventBus(lg)
	recorder := audit.NewRecorder(auditRepo.NewAuditRepository(dbs.SQL), clk, lg)
	recorder.Subscribe(bus)

	registry := session.NewRegistry(session.ConfigFrom(cfg.Session), sessionStore, clk, lg)
	authService := auth.NewService(users, roles, registry,
		auth.NewJWTTokenIssuer(cfg.Security.JWTSecret, cfg.Security.TokenIssuer),
		bus, clk, cfg.Security.SessionTTL, lg).WithBcryptCost(cfg.Security.BCryptCost)
	authService.Subscribe(bus)

	g := guard.New(users, roles, permService, lg)
	userService := user.NewService(users, roles, g, bus, lg).WithBcryptCost(cfg.Security.BCryptCost)
	roleService := role.NewService(roles, users, g, bus, lg)

	doc, err := swagger.Load(ctx)
	if err != nil {
		lg.Warn("openapi document unavailable", "error", err)
		doc = nil
	}

	if cfg.Observability.Metrics.Enabled {
		metrics.Register()
	}

	base := transport.NewBaseHandler(lg)
	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, rest.Handlers{
		Auth:        auth.NewHandler(base, authService),
		Authz:       auth.NewRBACAuthorization(lg),
		Users:       user.NewHandler(base, userService),
		Roles:       role.NewHandler(base, roleService),
		Permissions: permission.NewHandler(base, permService),
		Audit:       audit.NewHandler(base, recorder),
		Health:      rest.NewHealthHandler(dbs.SQL.DB, rdb),
		OpenAPI:     doc,
	}, rest.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		LoginRateLimit: cfg.Server.LoginRateLimit,
		Production:     cfg.Env == "production",
		MetricsEnabled: cfg.Observability.Metrics.Enabled,
		MetricsPath:    cfg.Observability.Metrics.Path,
	}, lg)

	return &Dependencies{
		Config:   cfg,
		DB:       dbs,
		Redis:    rdb,
		Registry: registry,
		Bus:      bus,
		Router:   router,
		Logger:   lg,
	}, nil
}

// initSessionStore returns the redis-backed store when enabled so sessions
// survive restarts, and a process-local store otherwise.
func initSessionStore(ctx context.Context, cfg internal.RedisConfig) (redis.UniversalClient, session.Store, error) {
	if !cfg.Enabled {
		return nil, session.WithPrefix(session.NewMemoryStore(), cfg.Prefix), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, session.WithPrefix(session.NewRedisStore(client), cfg.Prefix), nil
}
