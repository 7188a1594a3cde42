package slackbot

import (
	"context"
	"fmt"
	"net/http"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"

	"github.com/coral-p2025/coral/config"
	"github.com/coral-p2025/coral/server/metrics"
)

// Service wires the bot, its dispatcher and the configured transport.
type Service struct {
	Bot        *Bot
	Dispatcher *Dispatcher

	mode    string
	events  *EventsHandler
	socket  *SocketRunner
	logger  *zap.Logger
	cancel  context.CancelFunc
	stopped chan struct{}
}

// New builds the Slack integration described by cfg.
func New(cfg config.SlackConfig, replier Replier, logger *zap.Logger, m *metrics.Metrics) (*Service, error) {
	opts := []slack.Option{}
	if cfg.AppToken != "" {
		opts = append(opts, slack.OptionAppLevelToken(cfg.AppToken))
	}
	return NewWithAPI(cfg, slack.New(cfg.BotToken, opts...), replier, logger, m)
}

// NewWithAPI builds the integration over an existing Web API client.
// Socket mode requires api to be a *slack.Client.
func NewWithAPI(cfg config.SlackConfig, api API, replier Replier, logger *zap.Logger, m *metrics.Metrics) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewMetrics()
	}

	bot := NewBot(api, replier, logger, m)
	s := &Service{
		Bot:        bot,
		Dispatcher: NewDispatcher(bot.HandleEvent, cfg.Workers, cfg.QueueSize, logger, m),
		mode:       cfg.Mode,
		logger:     logger,
	}
	in := &intake{bot: bot, dispatcher: s.Dispatcher, logger: logger, metrics: m}

	switch cfg.Mode {
	case "", "events":
		s.mode = "events"
		s.events = &EventsHandler{signingSecret: cfg.SigningSecret, intake: in}
	case "socket":
		client, ok := api.(*slack.Client)
		if !ok {
			return nil, fmt.Errorf("socket mode requires a slack client")
		}
		sm := socketmode.New(client)
		s.socket = &SocketRunner{client: sm, acker: sm, intake: in}
	default:
		return nil, fmt.Errorf("unknown slack mode: %s", cfg.Mode)
	}
	return s, nil
}

// EventsHandler returns the Events API handler, nil in socket mode.
func (s *Service) EventsHandler() http.Handler {
	if s.events == nil {
		return nil
	}
	return s.events
}

// Start identifies the bot, starts the workers and, in socket mode,
// connects the websocket.
func (s *Service) Start(ctx context.Context) error {
	if err := s.Bot.Identify(ctx); err != nil {
		return err
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.Dispatcher.Start(ctx)

	if s.socket != nil {
		s.stopped = make(chan struct{})
		go func() {
			defer close(s.stopped)
			if err := s.socket.Run(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("slack socket mode stopped", zap.Error(err))
			}
		}()
	}
	s.logger.Info("slack integration started", zap.String("mode", s.mode))
	return nil
}

// Stop drains queued events and disconnects.
func (s *Service) Stop(ctx context.Context) error {
	err := s.Dispatcher.Stop(ctx)
	if s.cancel != nil {
		s.cancel()
	}
	if s.stopped != nil {
		select {
		case <-s.stopped:
		case <-ctx.Done():
		}
	}
	return err
}
