package validation

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/coral-p2025/coral/chat"
)

// DefaultEncoding is the tiktoken encoding used to bound message size. The
// remote model has its own tokenizer, so counts are an estimate.
const DefaultEncoding = "cl100k_base"

// Tokenizer defines the interface for token counting
type Tokenizer interface {
	Encode(text string, allowedSpecial, disallowedSpecial []string) []int
	CountTokens(text string) int
}

// tiktokenWrapper wraps tiktoken to implement our Tokenizer interface
type tiktokenWrapper struct {
	*tiktoken.Tiktoken
}

func (t *tiktokenWrapper) CountTokens(text string) int {
	return len(t.Encode(text, nil, nil))
}

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	Message        string     `json:"message" validate:"required"`
	Model          string     `json:"model,omitempty" validate:"omitempty,max=128"`
	Temperature    *float64   `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=5"`
	Preamble       string     `json:"preamble,omitempty"`
	ConversationID string     `json:"conversation_id,omitempty" validate:"omitempty,max=256"`
	Tools          []ChatTool `json:"tools,omitempty" validate:"omitempty,dive"`
}

// ChatTool is a tool offered to the model for one request.
type ChatTool struct {
	Name                 string                         `json:"name" validate:"required,max=64"`
	DisplayName          string                         `json:"display_name,omitempty"`
	Description          string                         `json:"description,omitempty"`
	ParameterDefinitions map[string]ParameterDefinition `json:"parameter_definitions,omitempty" validate:"omitempty,dive,keys,required,endkeys"`
}

// ParameterDefinition describes one tool argument.
type ParameterDefinition struct {
	Description string `json:"description,omitempty"`
	Type        string `json:"type" validate:"required"`
	Required    bool   `json:"required"`
}

// PreviewRequest is the body of POST /v1/preview.
type PreviewRequest struct {
	Content string `json:"content" validate:"required"`
}

// ChatTools converts the request tools. A request without a tools field
// yields nil so the configured defaults apply; an explicit empty list
// yields an empty slice.
func (r ChatRequest) ChatTools() []chat.Tool {
	if r.Tools == nil {
		return nil
	}
	tools := make([]chat.Tool, 0, len(r.Tools))
	for _, t := range r.Tools {
		tool := chat.Tool{
			Name:        t.Name,
			DisplayName: t.DisplayName,
			Description: t.Description,
		}
		if len(t.ParameterDefinitions) > 0 {
			tool.ParameterDefinitions = make(map[string]chat.ParameterDefinition, len(t.ParameterDefinitions))
			for name, p := range t.ParameterDefinitions {
				tool.ParameterDefinitions[name] = chat.ParameterDefinition(p)
			}
		}
		tools = append(tools, tool)
	}
	return tools
}

// TokenCounter handles token counting for messages using tiktoken
type TokenCounter struct {
	encoding Tokenizer
}

// NewTokenCounter creates a counter for the named tiktoken encoding. The
// encoding tables are fetched on first use, so this fails offline unless
// they are cached.
func NewTokenCounter(encoding string) (*TokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding %s: %w", encoding, err)
	}
	return &TokenCounter{encoding: &tiktokenWrapper{enc}}, nil
}

// NewTokenCounterWith creates a counter over an existing tokenizer.
func NewTokenCounterWith(t Tokenizer) *TokenCounter {
	return &TokenCounter{encoding: t}
}

// CountTokens counts the tokens of text.
func (tc *TokenCounter) CountTokens(text string) int {
	return tc.encoding.CountTokens(text)
}

// ValidateTokens checks that the message and preamble fit in limit tokens.
// A limit of zero disables the check.
func (tc *TokenCounter) ValidateTokens(req ChatRequest, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	total := tc.CountTokens(req.Message) + tc.CountTokens(req.Preamble)
	if total > limit {
		return total, fmt.Errorf("message has %d tokens, limit is %d", total, limit)
	}
	return total, nil
}
