package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/teilomillet/gollm"
	"github.com/teilomillet/gollm/llm"
	"go.uber.org/zap"
)

// LLM is the part of gollm.LLM used by GollmClient.
type LLM interface {
	Generate(ctx context.Context, prompt *gollm.Prompt, opts ...llm.GenerateOption) (string, error)
	SetOption(key string, value interface{})
}

// DefaultGollmTemperature is the provider temperature used when a request
// carries none.
const DefaultGollmTemperature = 0.7

// GollmClient answers chat requests straight from an LLM provider through
// gollm. It has no retrieval tools, so replies carry no citations, and no
// generation id.
type GollmClient struct {
	llm                LLM
	logger             *zap.Logger
	defaultTemperature float64

	// SetOption mutates the shared provider, so a per-request temperature
	// must not interleave with another request.
	mu sync.Mutex
}

var _ Client = (*GollmClient)(nil)

// NewGollmClient builds a gollm-backed client for provider and model.
func NewGollmClient(provider, model, apiKey string, logger *zap.Logger) (*GollmClient, error) {
	l, err := gollm.NewLLM(
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetAPIKey(apiKey),
		gollm.SetTemperature(DefaultGollmTemperature),
	)
	if err != nil {
		return nil, fmt.Errorf("initialize gollm provider %s: %w", provider, err)
	}
	return NewGollmClientWithLLM(l, logger), nil
}

// NewGollmClientWithLLM wraps an existing LLM configured with
// DefaultGollmTemperature.
func NewGollmClientWithLLM(l LLM, logger *zap.Logger) *GollmClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GollmClient{llm: l, logger: logger, defaultTemperature: DefaultGollmTemperature}
}

// Chat implements Client. The request's tools and conversation are not
// forwarded; the preamble becomes a system message.
func (c *GollmClient) Chat(ctx context.Context, req Request) (*Response, error) {
	prompt := &gollm.Prompt{}
	if req.Preamble != "" {
		prompt.Messages = append(prompt.Messages, gollm.PromptMessage{Role: "system", Content: req.Preamble})
	}
	prompt.Messages = append(prompt.Messages, gollm.PromptMessage{Role: "user", Content: req.Message})

	if len(req.Tools) > 0 {
		c.logger.Debug("gollm backend ignores tools", zap.Int("tools", len(req.Tools)))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// The option outlives the call, so it is set every time.
	temperature := c.defaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	c.llm.SetOption("temperature", temperature)
	text, err := c.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("gollm generate: %w", err)
	}

	return &Response{
		Text:           text,
		ConversationID: req.ConversationID,
	}, nil
}
