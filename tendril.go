package tendril

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go/option"
	natsAdapter "github.com/aretw0/tendril/internal/adapters/nats"
	redisAdapter "github.com/aretw0/tendril/internal/adapters/redis"
	"github.com/aretw0/tendril/internal/adapters/sqlite"
	"github.com/aretw0/tendril/internal/config"
	"github.com/aretw0/tendril/internal/logging"
	"github.com/aretw0/tendril/internal/runtime"
	"github.com/aretw0/tendril/internal/worker"
	"github.com/aretw0/tendril/pkg/adapters/memory"
	"github.com/aretw0/tendril/pkg/conv"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/observability"
	"github.com/aretw0/tendril/pkg/ports"
	"github.com/aretw0/tendril/pkg/provider"
	"github.com/aretw0/tendril/pkg/provider/anthropic"
	"github.com/aretw0/tendril/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
)

// Engine wires storage, the hub, providers, the runner and the worker from
// a configuration.
type Engine struct {
	Store     *store.Store
	Hub       ports.Hub
	Providers *provider.Manager
	Runner    *runtime.Runner
	Worker    *worker.Worker
	Convs     *conv.Service
	Registry  *prometheus.Registry

	rows    ports.RowStore
	locker  ports.Locker
	logger  *slog.Logger
	closers []func() error
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRowStore bypasses store.driver.
func WithRowStore(rows ports.RowStore) Option {
	return func(e *Engine) {
		e.rows = rows
	}
}

// WithHub bypasses hub.driver.
func WithHub(h ports.Hub) Option {
	return func(e *Engine) {
		e.Hub = h
	}
}

// New builds an engine. Close releases the connections it opened.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	e := &Engine{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.openStore(cfg); err != nil {
		e.Close()
		return nil, err
	}
	if err := e.openHub(cfg); err != nil {
		e.Close()
		return nil, err
	}

	e.Registry = prometheus.NewRegistry()
	e.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(e.Registry)

	e.Providers = provider.NewManager()
	if cfg.Anthropic.APIKey != "" {
		e.Providers.Register(anthropic.Prefix, anthropic.New(
			[]option.RequestOption{option.WithAPIKey(cfg.Anthropic.APIKey)},
			anthropic.WithMaxTokens(int64(cfg.Anthropic.MaxTokens)),
		))
	}

	e.Store = store.New(e.rows)
	e.Runner = runtime.NewRunner(e.Store, e.Providers,
		runtime.WithLogger(e.logger.With("component", "runner")),
		runtime.WithMetrics(metrics),
		runtime.WithMaxStackIterations(cfg.Runtime.MaxStackIterations),
	)

	workerOpts := []worker.Option{
		worker.WithLogger(e.logger.With("component", "worker")),
		worker.WithMetrics(metrics),
	}
	if e.locker != nil {
		workerOpts = append(workerOpts, worker.WithLocker(e.locker, 0))
	}
	e.Worker = worker.New(e.Hub, e.Store, e.Runner, workerOpts...)
	e.Convs = conv.NewService(e.Store, e.Hub, conv.WithLogger(e.logger.With("component", "conv")))

	return e, nil
}

func (e *Engine) openStore(cfg *config.Config) error {
	if e.rows != nil {
		return nil
	}
	switch cfg.Store.Driver {
	case "memory":
		e.rows = memory.NewStore()
	case "sqlite":
		s, err := sqlite.Open(cfg.Store.SQLitePath, sqlite.WithLogger(e.logger.With("component", "sqlite")))
		if err != nil {
			return err
		}
		e.rows = s
		e.closers = append(e.closers, s.Close)
	case "redis":
		s := redisAdapter.New(cfg.Store.RedisAddr, "", 0, redisAdapter.WithPrefix(cfg.Store.RedisPrefix))
		if err := s.Client().Ping(context.Background()).Err(); err != nil {
			s.Close()
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		e.rows = s
		e.locker = redisAdapter.NewLocker(s.Client(), cfg.Store.RedisPrefix)
		e.closers = append(e.closers, s.Close)
	}
	return nil
}

func (e *Engine) openHub(cfg *config.Config) error {
	if e.Hub != nil {
		return nil
	}
	switch cfg.Hub.Driver {
	case "memory":
		e.Hub = memory.NewHub()
	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: cfg.HubRedisAddr()})
		if err := client.Ping(context.Background()).Err(); err != nil {
			client.Close()
			return fmt.Errorf("failed to connect to redis hub: %w", err)
		}
		e.Hub = redisAdapter.NewHub(client, cfg.Store.RedisPrefix)
		if e.locker == nil {
			e.locker = redisAdapter.NewLocker(client, cfg.Store.RedisPrefix)
		}
		e.closers = append(e.closers, client.Close)
	case "nats":
		h, err := natsAdapter.Connect(cfg.Hub.NATSURL, "tendril.")
		if err != nil {
			return err
		}
		e.Hub = h
		e.closers = append(e.closers, h.Close)
	}
	return nil
}

// Start launches the worker and republishes work left pending by a previous
// process. The worker stops when ctx is done.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.Worker.Start(ctx); err != nil {
		return err
	}
	if _, err := e.Worker.Recover(ctx); err != nil {
		return err
	}
	return nil
}

// Ask adds a user message and drives the traversal in-process until the
// agent answers. It does not need a running worker.
func (e *Engine) Ask(ctx context.Context, convID int64, text string) (*domain.Message, error) {
	msg, err := e.Convs.AddMessage(ctx, convID, text)
	if err != nil {
		return nil, err
	}
	if err := e.Runner.Drain(ctx, convID); err != nil {
		return nil, err
	}
	answer, err := e.Store.Messages.AnswerFor(ctx, msg.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("message %d was not answered: %w", msg.ID, err)
	}
	return answer, err
}

// Close releases every connection opened by New, in reverse order.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
