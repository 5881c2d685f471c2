package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"abrplink/backend/libs/db"
	libredis "abrplink/backend/libs/redis"
	"abrplink/backend/services/abrp-agent/internal/auth"
	"abrplink/backend/services/abrp-agent/internal/clients"
	appconfig "abrplink/backend/services/abrp-agent/internal/config"
	"abrplink/backend/services/abrp-agent/internal/configstore"
	"abrplink/backend/services/abrp-agent/internal/host"
	httpserver "abrplink/backend/services/abrp-agent/internal/http"
	"abrplink/backend/services/abrp-agent/internal/http/handlers"
	"abrplink/backend/services/abrp-agent/internal/http/middleware"
	"abrplink/backend/services/abrp-agent/internal/notify"
	"abrplink/backend/services/abrp-agent/internal/observability"
	"abrplink/backend/services/abrp-agent/internal/registry"
	"abrplink/backend/services/abrp-agent/internal/scheduler"
	"abrplink/backend/services/abrp-agent/internal/service"
	"abrplink/backend/services/abrp-agent/internal/signals"
	"abrplink/backend/services/abrp-agent/internal/telemetry"
	"abrplink/backend/services/abrp-agent/internal/ws"
)

// App wires dependencies for the ABRP agent.
type App struct {
	cfg        *appconfig.Config
	logger     *zap.Logger
	sched      *scheduler.Scheduler
	controller *service.Controller
	sender     *clients.ABRPClient
	hub        *ws.Hub
	server     *httpserver.Server
	handler    http.Handler
	redis      *goredis.Client
	db         *sql.DB
}

// New builds application graph.
func New(cfg *appconfig.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	metricsRegistry, err := a.openRegistry()
	if err != nil {
		a.Close()
		return nil, err
	}
	store, err := a.openConfigStore()
	if err != nil {
		a.Close()
		return nil, err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(promRegistry)

	low, high := cfg.Rates()
	a.sched = scheduler.New(map[string]time.Duration{
		scheduler.TopicLowRate:  low,
		scheduler.TopicHighRate: high,
	}, 0, logger.Named("scheduler"))

	a.hub = ws.NewHub(30*time.Second, logger.Named("ws"))
	notifier := notify.NewNotifier(logger.Named("notify"), a.hub)

	accessor := signals.NewAccessor(metricsRegistry, logger.Named("signals"))
	mapper := telemetry.NewMapper(accessor, logger.Named("telemetry"))

	a.sender = clients.NewABRPClient(clients.ABRPOptions{
		URL:     cfg.ABRP.URL,
		APIKey:  cfg.ABRP.APIKey,
		Timeout: cfg.RequestTimeout(),
	}, nil, logger.Named("abrp"), metrics)

	agent := service.NewAgent(a.sched, mapper, a.sender, store, notifier, metrics, logger.Named("agent"), service.Options{
		Policy:     cfg.Policy,
		BufferSize: cfg.Sampling.BufferSize,
	})
	a.controller = service.NewController(agent, a.sched)

	tokens := auth.NewTokenService(cfg.Control.JWTSecret, cfg.TokenTTL())
	authenticator := auth.NewAuthenticator(auth.NewBcryptHasher(0), cfg.Control.PasswordHash, tokens)
	if cfg.Control.PasswordHash == "" {
		logger.Warn("control password hash not configured, login disabled")
	}

	routes := httpserver.RouterDeps{
		AuthHandlers:  handlers.NewAuthHandlers(authenticator, logger.Named("http")),
		AgentHandlers: handlers.NewAgentHandlers(a.controller, logger.Named("http")),
		HealthHandler: handlers.NewHealthHandler(),
		Metrics:       promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
		Notifications: ws.NewServer(a.hub, 5*time.Second, logger.Named("ws")).HandleWS,
	}
	a.handler = httpserver.NewRouter(routes, middleware.Auth(tokens))
	a.server = httpserver.NewServer(cfg.HTTPAddress(), a.handler, logger,
		middleware.Recover(logger), middleware.RequestLogger(logger.Named("http")))

	return a, nil
}

func (a *App) redisClient() (*goredis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	client, err := libredis.NewRedisClient(libredis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.redis = client
	return client, nil
}

func (a *App) openRegistry() (host.MetricsRegistry, error) {
	switch a.cfg.Registry.Backend {
	case "memory":
		seed := make(map[string]any, len(a.cfg.Registry.Static))
		for k, v := range a.cfg.Registry.Static {
			seed[k] = v
		}
		a.logger.Info("using in-memory metrics registry", zap.Int("signals", len(seed)))
		return registry.NewMemoryRegistry(seed), nil
	default:
		client, err := a.redisClient()
		if err != nil {
			return nil, err
		}
		return registry.NewRedisRegistry(client, a.cfg.Registry.HashKey), nil
	}
}

func (a *App) openConfigStore() (host.ConfigStore, error) {
	deps := configstore.Deps{Table: a.cfg.ConfigStore.Table}
	switch a.cfg.ConfigStore.Backend {
	case configstore.BackendRedis:
		client, err := a.redisClient()
		if err != nil {
			return nil, err
		}
		deps.Redis = client
	case configstore.BackendPostgres:
		sqlDB, err := db.NewPostgresDB(a.cfg.ConfigStore.DSN, db.PoolOptions{})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.db = sqlDB
		deps.DB = sqlDB
	}
	return configstore.New(a.cfg.ConfigStore.Backend, deps)
}

// Handler exposes the control API router.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Controller exposes the agent controller.
func (a *App) Controller() *service.Controller {
	return a.controller
}

// Run starts the scheduler and control API until context cancellation.
func (a *App) Run(ctx context.Context) error {
	loopCtx, stopLoop := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = a.sched.Run(loopCtx)
	}()
	go func() {
		defer wg.Done()
		a.hub.Start(loopCtx)
	}()

	if a.cfg.Agent.Autostart {
		a.autostart(ctx)
	}

	err := a.server.Run(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if stopErr := a.controller.Stop(stopCtx); stopErr != nil {
		a.logger.Warn("failed to stop agent", zap.Error(stopErr))
	}
	cancel()
	stopLoop()
	wg.Wait()
	a.sender.Wait()
	return err
}

func (a *App) autostart(ctx context.Context) {
	_, err := a.controller.SetSending(ctx, true)
	switch {
	case err == nil:
		a.logger.Info("agent autostarted")
	case errors.Is(err, service.ErrTokenMissing):
		a.logger.Warn("autostart skipped, user token not set")
	default:
		a.logger.Error("autostart failed", zap.Error(err))
	}
}

// Close releases acquired resources.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
}
