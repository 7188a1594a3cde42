package slackbot

import (
	"go.uber.org/zap"

	"github.com/coral-p2025/coral/server/metrics"
)

// intake filters inner events and hands accepted ones to the dispatcher.
// Both transports share it.
type intake struct {
	bot        *Bot
	dispatcher *Dispatcher
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

func (in *intake) accept(data interface{}) Disposition {
	ev, disposition := Classify(data, in.bot.UserID())
	if ev != nil {
		if err := in.dispatcher.Submit(ev); err != nil {
			in.logger.Warn("dropping slack event",
				zap.String("channel", ev.ChannelID()),
				zap.String("ts", ev.Timestamp()),
				zap.Error(err),
			)
			disposition = RejectedBacklog
		}
	}
	in.metrics.SlackEvents.WithLabelValues(eventType(data), string(disposition)).Inc()
	return disposition
}
