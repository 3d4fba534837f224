package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/middleware"
	"github.com/google/uuid"

	"github.com/appetiteclub/cafesync/internal/credential"
	"github.com/appetiteclub/cafesync/internal/navigation"
	"github.com/appetiteclub/cafesync/internal/orderapi"
	"github.com/appetiteclub/cafesync/internal/pipeline"
	"github.com/appetiteclub/cafesync/internal/pushstream"
	"github.com/appetiteclub/cafesync/internal/reconcile"
	"github.com/appetiteclub/cafesync/internal/session"
	"github.com/appetiteclub/cafesync/internal/view"
	"github.com/appetiteclub/cafesync/pkg/enums/role"
	"github.com/appetiteclub/cafesync/pkg/event"
)

const (
	AppName    = "ordersync"
	AppVersion = "0.1.0"
)

const (
	DefaultAPIURL        = "http://localhost:3000"
	DefaultNATSURL       = "nats://localhost:4222"
	DefaultRedisURL      = "redis://localhost:6379/0"
	DefaultMongoURL      = "mongodb://localhost:27017"
	DefaultMongoDatabase = "cafesync"

	TransportSSE  = "sse"
	TransportNATS = "nats"

	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
)

// PushSource is what the app needs from either push transport.
type PushSource interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Subscribe(subscriberID string) <-chan event.Event
	Unsubscribe(subscriberID string)
	OnConnect(fn func())
}

// Engine is the assembled client-side engine, without the HTTP surface.
// cafectl builds one to run single operations.
type Engine struct {
	Role        role.Role
	Credentials *credential.Store
	Tracker     *navigation.Tracker
	Client      *pipeline.Client
	Sessions    *session.Service
	Validator   *session.Validator
	Orders      *orderapi.DataAccess
	Core        *reconcile.Core
	Poller      *reconcile.Poller

	lifecycles []interface{}
}

// App encapsulates the order sync service
type App struct {
	config *apt.Config
	logger apt.Logger
	micro  *apt.Micro
	engine *Engine
}

// New creates a new order sync application
func New(config *apt.Config, logger apt.Logger) (*App, error) {
	if config == nil {
		return nil, fmt.Errorf("%s: config is required", AppName)
	}
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &App{
		config: config,
		logger: logger,
	}, nil
}

// NewEngine builds the credential store, request pipeline, session and
// reconciliation components from config.
func NewEngine(config *apt.Config, logger apt.Logger) (*Engine, error) {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}

	roleName := config.GetStringOrDef("session.role", role.Staff.Code())
	rl := role.ByName(roleName)
	if rl == nil {
		return nil, fmt.Errorf("%w: %s", session.ErrUnknownRole, roleName)
	}
	r := *rl

	kv, hooks, err := newKV(config, logger)
	if err != nil {
		return nil, err
	}

	e := &Engine{Role: r, lifecycles: hooks}
	e.Credentials = credential.NewStore(kv, logger.With("component", "credentials"))
	e.Tracker = navigation.NewTracker(homePath(r), logger.With("component", "navigation"))

	apiURL := config.GetStringOrDef("api.url", DefaultAPIURL)
	transport := pipeline.NewTransport(http.DefaultTransport, e.Credentials, e.Tracker, logger.With("component", "pipeline"))
	e.Client = pipeline.NewClient(apiURL, transport, logger.With("component", "api"))

	e.Sessions = session.NewService(e.Client, e.Credentials, logger.With("component", "session"))
	e.Validator = session.NewValidator(e.Client, e.Credentials, e.Tracker, session.ValidatorConfig{
		Role:          r,
		Interval:      duration(config, "session.check_interval", session.DefaultCheckInterval, logger),
		RedirectDelay: duration(config, "session.redirect_delay", session.DefaultRedirectDelay, logger),
	}, logger.With("component", "validator"))

	e.Orders = orderapi.NewDataAccess(e.Client, r, logger.With("component", "orderapi"))
	e.Core = reconcile.NewCore(duration(config, "poll.coalesce_window", reconcile.DefaultCoalesceWindow, logger), logger.With("component", "reconcile"))
	e.Poller = reconcile.NewPoller(e.Core, e.Orders, reconcile.PollerConfig{
		FastInterval: duration(config, "poll.fast_interval", reconcile.DefaultFastInterval, logger),
		SlowInterval: duration(config, "poll.slow_interval", reconcile.DefaultSlowInterval, logger),
	}, logger.With("component", "poller"))

	return e, nil
}

// Lifecycles returns the hooks owning the credential backend.
func (e *Engine) Lifecycles() []interface{} {
	return e.lifecycles
}

// Start runs the backend hooks directly, for callers without an apt.Micro.
func (e *Engine) Start(ctx context.Context) error {
	for _, l := range e.lifecycles {
		if h, ok := l.(apt.LifecycleHooks); ok && h.OnStart != nil {
			if err := h.OnStart(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Stop releases the backend hooks.
func (e *Engine) Stop(ctx context.Context) error {
	var firstErr error
	for i := len(e.lifecycles) - 1; i >= 0; i-- {
		if h, ok := e.lifecycles[i].(apt.LifecycleHooks); ok && h.OnStop != nil {
			if err := h.OnStop(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Initialize sets up all dependencies and components
func (a *App) Initialize(ctx context.Context) error {
	engine, err := NewEngine(a.config, a.logger)
	if err != nil {
		return err
	}
	a.engine = engine

	push, err := a.newPushSource(engine)
	if err != nil {
		return err
	}

	// Push events feed the core through a dedicated subscription.
	pumpCtx, cancelPump := context.WithCancel(context.Background())
	pumpID := "core-" + uuid.New().String()
	pumpHooks := apt.LifecycleHooks{
		OnStart: func(context.Context) error {
			ch := push.Subscribe(pumpID)
			go pushstream.Pump(pumpCtx, ch, engine.Core)
			return nil
		},
		OnStop: func(context.Context) error {
			cancelPump()
			push.Unsubscribe(pumpID)
			return nil
		},
	}

	coreHooks := apt.LifecycleHooks{
		OnStop: func(context.Context) error {
			engine.Core.Close()
			return nil
		},
	}

	handler := view.NewHandler(view.Deps{
		Orders:      engine.Core,
		Refresher:   engine.Poller,
		Session:     engine.Validator,
		Sessions:    engine.Sessions,
		Credentials: engine.Credentials,
		Router:      engine.Tracker,
		Role:        engine.Role,
	}, a.logger.With("component", "view"))

	stack := middleware.DefaultStack(middleware.StackOptions{
		Logger: a.logger,
	})

	lifecycles := append([]interface{}{}, engine.Lifecycles()...)
	lifecycles = append(lifecycles,
		engine.Validator,
		pumpHooks,
		engine.Poller,
		push,
		coreHooks,
	)

	options := []apt.Option{
		apt.WithConfig(a.config),
		apt.WithLogger(a.logger),
		apt.WithHTTPMiddleware(stack...),
		apt.WithHTTPServerModules("web.port", handler),
		apt.WithLifecycle(lifecycles...),
		apt.WithHealthChecks(AppName),
	}

	a.micro = apt.NewMicro(options...)
	return nil
}

// Run starts the application
func (a *App) Run(ctx context.Context) error {
	if a.micro == nil {
		return fmt.Errorf("%s: not initialized", AppName)
	}
	a.logger.Infof("Starting %s(%s) as %s", AppName, AppVersion, a.engine.Role.Code())
	if err := a.micro.Run(ctx); err != nil {
		return err
	}
	a.logger.Infof("%s(%s) stopped", AppName, AppVersion)
	return nil
}

func (a *App) newPushSource(e *Engine) (PushSource, error) {
	switch transport := strings.ToLower(a.config.GetStringOrDef("push.transport", TransportSSE)); transport {
	case TransportSSE:
		apiURL := strings.TrimRight(a.config.GetStringOrDef("api.url", DefaultAPIURL), "/")
		client := pushstream.NewClient(e.Client, pushstream.Config{
			URL:              a.config.GetStringOrDef("push.url", apiURL+pushstream.StreamPath),
			Role:             e.Role,
			HandshakeTimeout: duration(a.config, "push.handshake_timeout", pushstream.DefaultHandshakeTimeout, a.logger),
		}, a.logger.With("component", "pushstream"))
		// Events missed while disconnected are recovered by the next poll.
		client.OnConnect(e.Core.RequestRefresh)
		return client, nil

	case TransportNATS:
		source := pushstream.NewNATSSource(
			a.config.GetStringOrDef("nats.url", DefaultNATSURL),
			a.config.GetStringOrDef("nats.subject", event.DefaultSubject),
			a.logger.With("component", "nats"),
		)
		source.OnConnect(e.Core.RequestRefresh)
		return source, nil

	default:
		return nil, fmt.Errorf("unknown push transport %q", transport)
	}
}

func newKV(config *apt.Config, logger apt.Logger) (credential.KV, []interface{}, error) {
	switch backend := strings.ToLower(config.GetStringOrDef("credentials.backend", BackendMemory)); backend {
	case BackendMemory:
		return credential.NewMemoryKV(), nil, nil

	case BackendRedis:
		kv, err := credential.NewRedisKV(config.GetStringOrDef("credentials.redis.url", DefaultRedisURL))
		if err != nil {
			return nil, nil, err
		}
		hooks := apt.LifecycleHooks{
			OnStop: func(context.Context) error { return kv.Close() },
		}
		return kv, []interface{}{hooks}, nil

	case BackendMongo:
		kv := credential.NewMongoKV(
			config.GetStringOrDef("db.mongo.url", DefaultMongoURL),
			config.GetStringOrDef("db.mongo.name", DefaultMongoDatabase),
			logger.With("component", "mongo"),
		)
		hooks := apt.LifecycleHooks{OnStart: kv.Start, OnStop: kv.Stop}
		return kv, []interface{}{hooks}, nil

	default:
		return nil, nil, fmt.Errorf("unknown credentials backend %q", backend)
	}
}

// duration reads a duration key, falling back to def when it is missing or
// cannot be parsed.
func duration(config *apt.Config, key string, def time.Duration, logger apt.Logger) time.Duration {
	raw := strings.TrimSpace(config.GetStringOrDef(key, ""))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		logger.Info("invalid duration, using default", "key", key, "value", raw, "default", def.String())
		return def
	}
	return d
}

func homePath(r role.Role) string {
	return "/" + r.Code() + "/orders"
}
