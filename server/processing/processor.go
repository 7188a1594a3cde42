package processing

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/coral-p2025/coral/chat"
	"github.com/coral-p2025/coral/config"
	"github.com/coral-p2025/coral/server/mention"
	"github.com/coral-p2025/coral/server/metrics"
	"go.uber.org/zap"
)

const (
	outcomeOK       = "ok"
	outcomeAPIError = "api_error"
	outcomeError    = "error"
)

// Processor runs the reply pipeline against a chat backend.
//
// Processor is safe for concurrent use. Defaults can be swapped while
// replies are in flight; each reply uses the defaults current when it
// started.
type Processor struct {
	client   chat.Client
	defaults atomic.Pointer[Defaults]
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewProcessor creates a processor sending requests to client.
func NewProcessor(client chat.Client, bot config.BotConfig, logger *zap.Logger, m *metrics.Metrics) (*Processor, error) {
	if client == nil {
		return nil, fmt.Errorf("chat client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewMetrics()
	}

	p := &Processor{
		client:  client,
		logger:  logger,
		metrics: m,
	}
	p.UpdateDefaults(bot)
	return p, nil
}

// UpdateDefaults replaces the configured reply defaults.
func (p *Processor) UpdateDefaults(bot config.BotConfig) {
	d := DefaultsFromConfig(bot)
	p.defaults.Store(&d)
}

// Defaults returns the reply defaults currently in effect.
func (p *Processor) Defaults() Defaults {
	return *p.defaults.Load()
}

// GetReply turns args.Event into a reply. It never returns an error: a
// failed chat call yields a result with ErrorMessage set and no reply text.
//
// Once started, GetReply runs to completion even if ctx is cancelled.
func (p *Processor) GetReply(ctx context.Context, args ReplyArgs) chat.ReplyResult {
	start := time.Now()
	ctx = context.WithoutCancel(ctx)
	defaults := p.Defaults()

	logger := p.logger.With(zap.String("conversation_id", args.ConversationID))

	sanitizer := mention.NewSanitizer(args.Resolver, defaults.MentionConcurrency, logger)
	sanitizer.OnResolveError = func(string, error) {
		p.metrics.MentionResolveFailures.Inc()
	}

	var text string
	if args.Event != nil {
		text = args.Event.GetText()
	}
	message := sanitizer.Sanitize(ctx, text, mention.Options{
		BotUserID:              args.BotUserID,
		StripLeadingBotMention: args.IsFirstMessage,
	})

	req := BuildRequest(args, defaults)
	req.Message = message

	result, outcome := p.call(ctx, req, args.CitationStyle, sanitizer, defaults, logger)

	duration := time.Since(start)
	p.metrics.RepliesTotal.WithLabelValues(outcome).Inc()
	p.metrics.ReplyDuration.Observe(duration.Seconds())

	logger.Info("reply produced",
		zap.String("outcome", outcome),
		zap.String("model", req.Model),
		zap.Int("tools", len(req.Tools)),
		zap.String("response_id", result.ResponseID),
		zap.Duration("duration", duration),
	)
	return result
}

func (p *Processor) call(ctx context.Context, req chat.Request, style chat.CitationStyle, sanitizer *mention.Sanitizer, defaults Defaults, logger *zap.Logger) (chat.ReplyResult, string) {
	generalError := defaults.GeneralErrorMessage
	if generalError == "" {
		generalError = chat.GeneralErrorMessage
	}

	resp, err := p.client.Chat(ctx, req)
	if err != nil {
		var apiErr *chat.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			logger.Warn("chat service rejected request",
				zap.Int("status", apiErr.StatusCode),
				zap.String("message", apiErr.Message),
			)
			return chat.ReplyResult{ErrorMessage: apiErr.Message}, outcomeAPIError
		}
		logger.Error("chat request failed", zap.Error(err))
		return chat.ReplyResult{ErrorMessage: generalError}, outcomeError
	}

	reply := sanitizer.Sanitize(ctx, resp.Text, mention.Options{}) + chat.FormatCitationsAs(resp, style)
	if reply == "" {
		logger.Warn("chat service returned an empty reply",
			zap.String("generation_id", resp.GenerationID),
		)
		return chat.ReplyResult{ErrorMessage: generalError}, outcomeError
	}

	return chat.ReplyResult{
		BotReplyText: reply,
		ResponseID:   resp.GenerationID,
	}, outcomeOK
}

// BuildRequest assembles the chat request for args, filling unset values
// from defaults. The message is taken verbatim from args.Event; GetReply
// replaces it with the sanitized text.
//
// A temperature of zero counts as unset, so it is never sent. Tools and
// the preamble are only sent when non-empty.
func BuildRequest(args ReplyArgs, defaults Defaults) chat.Request {
	req := chat.Request{
		Model:            firstNonEmpty(args.Model, defaults.Model, chat.DefaultChatModel),
		ConversationID:   args.ConversationID,
		Preamble:         firstNonEmpty(args.Preamble, defaults.Preamble),
		PromptTruncation: chat.TruncationAutoPreserveOrder,
	}
	if args.Event != nil {
		req.Message = args.Event.GetText()
	}

	switch {
	case args.Temperature != nil && *args.Temperature != 0:
		t := *args.Temperature
		req.Temperature = &t
	case defaults.Temperature != 0:
		t := defaults.Temperature
		req.Temperature = &t
	}

	tools := defaults.Tools
	if args.Tools != nil {
		tools = args.Tools
	}
	if len(tools) > 0 {
		req.Tools = append([]chat.Tool(nil), tools...)
	}

	return req
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
