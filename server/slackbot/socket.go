package slackbot

import (
	"context"

	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"
)

// acker acknowledges Socket Mode envelopes.
type acker interface {
	Ack(req socketmode.Request, payload ...interface{})
}

// SocketRunner receives events over a Socket Mode websocket.
type SocketRunner struct {
	client *socketmode.Client
	acker  acker
	intake *intake
}

// Run connects and processes events until ctx is done.
func (s *SocketRunner) Run(ctx context.Context) error {
	go s.consume(ctx, s.client.Events)
	return s.client.RunContext(ctx)
}

func (s *SocketRunner) consume(ctx context.Context, events <-chan socketmode.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			s.handle(evt)
		}
	}
}

func (s *SocketRunner) handle(evt socketmode.Event) {
	logger := s.intake.logger
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		logger.Info("connecting to slack socket mode")
	case socketmode.EventTypeConnected:
		logger.Info("connected to slack socket mode")
	case socketmode.EventTypeConnectionError:
		logger.Warn("slack socket mode connection failed", zap.Any("data", evt.Data))
	case socketmode.EventTypeEventsAPI:
		if evt.Request != nil {
			s.acker.Ack(*evt.Request)
		}
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok || apiEvent.Type != slackevents.CallbackEvent {
			return
		}
		disposition := s.intake.accept(apiEvent.InnerEvent.Data)
		logger.Debug("slack event received",
			zap.String("type", apiEvent.InnerEvent.Type),
			zap.String("disposition", string(disposition)),
		)
	}
}
