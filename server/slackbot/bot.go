package slackbot

import (
	"context"
	"fmt"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/coral-p2025/coral/chat"
	"github.com/coral-p2025/coral/server/metrics"
	"github.com/coral-p2025/coral/server/processing"
)

// API is the part of the Slack Web API the bot needs.
type API interface {
	UsersAPI
	AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Replier produces a reply for a message.
type Replier interface {
	GetReply(ctx context.Context, args processing.ReplyArgs) chat.ReplyResult
}

// Bot answers Slack events in their thread.
type Bot struct {
	api       API
	replier   Replier
	users     *UserDirectory
	botUserID string
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewBot creates a bot. Call Identify before handling events so the bot
// recognizes its own mention.
func NewBot(api API, replier Replier, logger *zap.Logger, m *metrics.Metrics) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewMetrics()
	}
	return &Bot{
		api:     api,
		replier: replier,
		users:   NewUserDirectory(api),
		logger:  logger,
		metrics: m,
	}
}

// Identify looks up the bot's own user id with auth.test.
func (b *Bot) Identify(ctx context.Context) error {
	resp, err := b.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	b.botUserID = resp.UserID
	b.logger.Info("connected to slack",
		zap.String("team", resp.Team),
		zap.String("bot_user_id", resp.UserID),
	)
	return nil
}

// UserID returns the bot's own user id, empty before Identify.
func (b *Bot) UserID() string {
	return b.botUserID
}

// HandleEvent runs the reply pipeline for ev and posts the reply, or the
// error message, into ev's thread.
func (b *Bot) HandleEvent(ctx context.Context, ev Event) error {
	start := time.Now()
	conversationID := ConversationID(ev)

	result := b.replier.GetReply(ctx, processing.ReplyArgs{
		Event:          ev,
		ConversationID: conversationID,
		BotUserID:      b.botUserID,
		IsFirstMessage: IsFirstMessage(ev),
		Resolver:       b.users,
	})

	text := result.BotReplyText
	if result.Failed() {
		text = result.ErrorMessage
	}

	_, ts, err := b.api.PostMessageContext(ctx, ev.ChannelID(),
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(ThreadRoot(ev)),
	)
	if err != nil {
		b.logger.Error("failed to post reply",
			zap.String("channel", ev.ChannelID()),
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return fmt.Errorf("post reply: %w", err)
	}

	b.logger.Debug("posted reply",
		zap.String("channel", ev.ChannelID()),
		zap.String("conversation_id", conversationID),
		zap.String("response_id", result.ResponseID),
		zap.String("ts", ts),
		zap.Bool("failed", result.Failed()),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}
