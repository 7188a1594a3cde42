// Package server assembles the coral HTTP server: the chi router, the
// middleware chain, the reply pipeline and the optional Slack integration.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/coral-p2025/coral/chat"
	"github.com/coral-p2025/coral/config"
	"github.com/coral-p2025/coral/errors"
	"github.com/coral-p2025/coral/server/handlers"
	"github.com/coral-p2025/coral/server/metrics"
	"github.com/coral-p2025/coral/server/middleware"
	"github.com/coral-p2025/coral/server/processing"
	"github.com/coral-p2025/coral/server/provider"
	"github.com/coral-p2025/coral/server/sandbox"
	"github.com/coral-p2025/coral/server/slackbot"
	"github.com/coral-p2025/coral/server/validation"
)

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     chi.Router
	watcher    config.Watcher
	logger     *zap.Logger
	metrics    *metrics.Metrics

	client    chat.Client
	health    handlers.HealthChecker
	processor *processing.Processor
	validator *validation.Validator
	queue     *middleware.QueueMiddleware
	limiter   *middleware.RateLimiter
	store     *sandbox.MemoryStore
	slack     *slackbot.Service
	slackAPI  slackbot.API

	mu      sync.Mutex
	started bool
}

// Option customizes a Server.
type Option func(*Server)

// WithChatClient replaces the backends built from chat configuration.
func WithChatClient(client chat.Client) Option {
	return func(s *Server) { s.client = client }
}

// WithSlackAPI replaces the Slack Web API client built from the bot token.
func WithSlackAPI(api slackbot.API) Option {
	return func(s *Server) { s.slackAPI = api }
}

// WithMetrics uses m instead of a fresh registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a server from the watcher's current configuration.
// Later configuration updates change reply defaults, the message token
// limit and the admission queue size; other sections need a restart.
func NewServer(watcher config.Watcher, logger *zap.Logger, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{watcher: watcher, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewMetrics()
	}

	cfg := watcher.GetCurrentConfig()
	if cfg == nil {
		return nil, fmt.Errorf("no configuration")
	}

	if s.client == nil {
		mgr, err := provider.NewManagerFromConfig(cfg, logger.Named("provider"), s.metrics)
		if err != nil {
			return nil, fmt.Errorf("chat backends: %w", err)
		}
		s.client = mgr
	}
	if hc, ok := s.client.(handlers.HealthChecker); ok {
		s.health = hc
	}

	processor, err := processing.NewProcessor(s.client, cfg.Bot, logger.Named("reply"), s.metrics)
	if err != nil {
		return nil, err
	}
	s.processor = processor

	s.validator = validation.NewWithDefaultEncoding(cfg.Bot.MaxMessageTokens, logger)
	s.queue = middleware.NewQueueMiddleware(cfg.Queue.MaxSize, s.metrics)
	s.limiter = middleware.NewRateLimiter(cfg.RateLimit, s.metrics)
	s.store = sandbox.NewMemoryStore(cfg.Sandbox.BlobPath, s.metrics, sandbox.WithMaxDocuments(cfg.Sandbox.MaxDocuments))

	if cfg.Slack.Enabled {
		slackLogger := logger.Named("slack")
		if s.slackAPI != nil {
			s.slack, err = slackbot.NewWithAPI(cfg.Slack, s.slackAPI, processor, slackLogger, s.metrics)
		} else {
			s.slack, err = slackbot.New(cfg.Slack, processor, slackLogger, s.metrics)
		}
		if err != nil {
			return nil, fmt.Errorf("slack: %w", err)
		}
	}

	s.router = s.routes(cfg)
	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        s.router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}
	return s, nil
}

func (s *Server) routes(cfg *config.Config) chi.Router {
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(errors.ErrorHandler(s.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTimer)
	r.Use(middleware.Recovery(s.logger))
	r.Use(middleware.CORS)
	r.Use(middleware.Logging(s.logger))
	r.Use(middleware.PrometheusMetrics(s.metrics))

	transformer := sandbox.NewTransformer(s.store, cfg.Sandbox.PlaceholderURL, s.logger.Named("sandbox"), s.metrics)
	blobs := handlers.NewBlobHandler(s.store)

	r.Get("/health", handlers.NewHealthHandler(s.health).ServeHTTP)
	r.Handle("/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		if cfg.RateLimit.Enabled {
			r.Use(s.limiter.Handler)
		}
		if cfg.Queue.Enabled {
			r.Use(s.queue.Handler)
		}
		r.Use(s.validator.ValidateChat)
		r.Post("/v1/chat", handlers.NewChatHandler(s.processor, s.logger.Named("chat")).ServeHTTP)
	})
	r.Group(func(r chi.Router) {
		if cfg.RateLimit.Enabled {
			r.Use(s.limiter.Handler)
		}
		r.Use(s.validator.ValidatePreview)
		r.Post("/v1/preview", handlers.NewPreviewHandler(transformer).ServeHTTP)
	})

	blobPath := strings.TrimRight(cfg.Sandbox.BlobPath, "/")
	r.Get(blobPath+"/{id}", blobs.Get)
	r.Delete(blobPath+"/{id}", blobs.Delete)

	if s.slack != nil {
		if h := s.slack.EventsHandler(); h != nil {
			r.Post("/slack/events", h.ServeHTTP)
		}
	}
	return r
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Processor returns the reply pipeline.
func (s *Server) Processor() *processing.Processor {
	return s.processor
}

// Start serves until ctx is done, then shuts down gracefully. It applies
// configuration updates while running.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true
	s.mu.Unlock()

	if s.slack != nil {
		if err := s.slack.Start(ctx); err != nil {
			return fmt.Errorf("start slack: %w", err)
		}
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("Server started", zap.String("address", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	updates := s.watcher.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return s.shutdown()
		case err := <-errChan:
			_ = s.shutdown()
			return err
		case cfg, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			s.ApplyConfig(cfg)
		}
	}
}

// ApplyConfig applies the hot-reloadable sections of cfg.
func (s *Server) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	s.processor.UpdateDefaults(cfg.Bot)
	s.validator.SetMaxTokens(cfg.Bot.MaxMessageTokens)
	s.queue.SetMaxSize(cfg.Queue.MaxSize)

	if addr := fmt.Sprintf(":%d", cfg.Server.Port); addr != s.httpServer.Addr {
		s.logger.Warn("server port change requires a restart",
			zap.String("current", s.httpServer.Addr),
			zap.String("configured", addr),
		)
	}
	s.logger.Info("configuration reloaded",
		zap.String("model", cfg.Bot.Model),
		zap.Int("max_message_tokens", cfg.Bot.MaxMessageTokens),
		zap.Int64("queue_max_size", cfg.Queue.MaxSize),
	)
}

func (s *Server) shutdown() error {
	timeout := 30 * time.Second
	if cfg := s.watcher.GetCurrentConfig(); cfg != nil && cfg.Server.ShutdownTimeout > 0 {
		timeout = cfg.Server.ShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("Shutting down server")
	err := s.httpServer.Shutdown(ctx)
	if qerr := s.queue.Shutdown(ctx); qerr != nil {
		s.logger.Warn("admission queue did not drain", zap.Error(qerr))
	}
	if s.slack != nil {
		if serr := s.slack.Stop(ctx); serr != nil {
			s.logger.Warn("slack events did not drain", zap.Error(serr))
		}
	}
	if err != nil {
		return fmt.Errorf("error during server shutdown: %w", err)
	}
	return nil
}
