package slackbot

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"go.uber.org/zap"

	"github.com/coral-p2025/coral/errors"
)

// maxEventBytes bounds an Events API request body.
const maxEventBytes = 1 << 20

// EventsHandler serves the Slack Events API endpoint. Requests are
// verified with the signing secret and acknowledged before the reply is
// produced.
type EventsHandler struct {
	signingSecret string
	intake        *intake
}

// ServeHTTP implements http.Handler.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		errors.WriteError(w, errors.NewBadRequestError("", "failed to read request body", err))
		return
	}

	sv, err := slack.NewSecretsVerifier(r.Header, h.signingSecret)
	if err != nil {
		errors.WriteError(w, errors.NewSignatureError("", err))
		return
	}
	if _, err := sv.Write(body); err != nil {
		errors.WriteError(w, errors.NewInternalError("", err))
		return
	}
	if err := sv.Ensure(); err != nil {
		errors.WriteError(w, errors.NewSignatureError("", err))
		return
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		errors.WriteError(w, errors.NewBadRequestError("", "invalid event payload", err))
		return
	}

	switch event.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			errors.WriteError(w, errors.NewBadRequestError("", "invalid challenge", err))
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(challenge.Challenge))

	case slackevents.CallbackEvent:
		// Slack redelivers events it considers unacknowledged; the first
		// delivery is already being answered.
		if r.Header.Get("X-Slack-Retry-Num") != "" {
			h.intake.metrics.SlackEvents.WithLabelValues(eventType(event.InnerEvent.Data), string(IgnoredRetry)).Inc()
			w.WriteHeader(http.StatusOK)
			return
		}
		disposition := h.intake.accept(event.InnerEvent.Data)
		h.intake.logger.Debug("slack event received",
			zap.String("type", event.InnerEvent.Type),
			zap.String("disposition", string(disposition)),
		)
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusOK)
	}
}
