// Package processing runs the reply pipeline: it sanitizes an incoming
// message, calls the chat backend and turns the response, or the failure,
// into a reply ready to post.
package processing

import (
	"github.com/coral-p2025/coral/chat"
	"github.com/coral-p2025/coral/config"
	"github.com/coral-p2025/coral/server/mention"
)

// Message is an inbound message. Every Slack event variant implements it,
// so the pipeline never needs to know which one it got.
type Message interface {
	GetText() string
}

// Text is a Message made of plain text, used by callers outside Slack.
type Text string

// GetText implements Message.
func (t Text) GetText() string { return string(t) }

// ReplyArgs are the per-call inputs of GetReply. Zero values mean "not
// provided" and fall back to the configured defaults.
type ReplyArgs struct {
	Event Message

	// Tools replaces the default tools when non-nil. A non-nil empty slice
	// disables tools for this call.
	Tools       []chat.Tool
	Model       string
	Temperature *float64
	Preamble    string

	ConversationID string
	BotUserID      string
	IsFirstMessage bool

	// Resolver looks up display names for mentions. Nil leaves mentions
	// as raw tokens.
	Resolver mention.Resolver

	// CitationStyle is the link syntax of the sources list; the zero value
	// is Slack mrkdwn.
	CitationStyle chat.CitationStyle
}

// Defaults are the reply settings applied when a call does not override
// them.
type Defaults struct {
	Model               string
	Temperature         float64
	Preamble            string
	Tools               []chat.Tool
	GeneralErrorMessage string
	MentionConcurrency  int
}

// DefaultsFromConfig converts the bot configuration section.
func DefaultsFromConfig(cfg config.BotConfig) Defaults {
	d := Defaults{
		Model:               cfg.Model,
		Temperature:         cfg.Temperature,
		Preamble:            cfg.Preamble,
		GeneralErrorMessage: cfg.GeneralErrorMessage,
		MentionConcurrency:  cfg.MentionConcurrency,
	}
	for _, t := range cfg.Tools {
		tool := chat.Tool{
			Name:        t.Name,
			DisplayName: t.DisplayName,
			Description: t.Description,
		}
		if len(t.ParameterDefinitions) > 0 {
			tool.ParameterDefinitions = make(map[string]chat.ParameterDefinition, len(t.ParameterDefinitions))
			for name, p := range t.ParameterDefinitions {
				tool.ParameterDefinitions[name] = chat.ParameterDefinition{
					Description: p.Description,
					Type:        p.Type,
					Required:    p.Required,
				}
			}
		}
		d.Tools = append(d.Tools, tool)
	}
	return d
}
