// Package slackbot connects the reply pipeline to Slack. Events arrive
// either over the HTTP Events API or over Socket Mode, are filtered down to
// messages addressed to the bot, and are answered in a thread.
package slackbot

import (
	"github.com/google/uuid"
	"github.com/slack-go/slack/slackevents"

	"github.com/coral-p2025/coral/server/processing"
)

// Event is a Slack message the bot should answer. MentionEvent and
// DirectMessageEvent are the only variants.
type Event interface {
	processing.Message

	ChannelID() string
	UserID() string
	Timestamp() string
	// ThreadTS is the root of the thread the message was posted in, empty
	// for a top-level message.
	ThreadTS() string
}

// MentionEvent is an app_mention in a channel.
type MentionEvent struct {
	Channel         string
	User            string
	Text            string
	TimeStamp       string
	ThreadTimeStamp string
}

// DirectMessageEvent is a message posted in the bot's IM channel.
type DirectMessageEvent struct {
	Channel         string
	User            string
	Text            string
	TimeStamp       string
	ThreadTimeStamp string
}

func (e MentionEvent) GetText() string   { return e.Text }
func (e MentionEvent) ChannelID() string { return e.Channel }
func (e MentionEvent) UserID() string    { return e.User }
func (e MentionEvent) Timestamp() string { return e.TimeStamp }
func (e MentionEvent) ThreadTS() string  { return e.ThreadTimeStamp }

func (e DirectMessageEvent) GetText() string   { return e.Text }
func (e DirectMessageEvent) ChannelID() string { return e.Channel }
func (e DirectMessageEvent) UserID() string    { return e.User }
func (e DirectMessageEvent) Timestamp() string { return e.TimeStamp }
func (e DirectMessageEvent) ThreadTS() string  { return e.ThreadTimeStamp }

// Disposition labels what happened to an inbound event.
type Disposition string

const (
	Accepted        Disposition = "accepted"
	IgnoredBot      Disposition = "ignored_bot"
	IgnoredSelf     Disposition = "ignored_self"
	IgnoredSubtype  Disposition = "ignored_subtype"
	IgnoredChannel  Disposition = "ignored_channel"
	IgnoredEmpty    Disposition = "ignored_empty"
	IgnoredType     Disposition = "ignored_type"
	IgnoredRetry    Disposition = "ignored_retry"
	RejectedBacklog Disposition = "rejected_backlog"
)

// conversationNamespace scopes conversation ids derived from Slack threads.
var conversationNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://slack.com/coral/threads"))

// Classify converts the inner event of an Events API payload. Events the
// bot must not answer come back nil with the reason.
//
// Channel messages are dropped because the bot receives the same message
// as an app_mention when it is addressed.
func Classify(data interface{}, botUserID string) (Event, Disposition) {
	switch ev := data.(type) {
	case *slackevents.AppMentionEvent:
		switch {
		case ev.BotID != "":
			return nil, IgnoredBot
		case botUserID != "" && ev.User == botUserID:
			return nil, IgnoredSelf
		case ev.Text == "":
			return nil, IgnoredEmpty
		}
		return MentionEvent{
			Channel:         ev.Channel,
			User:            ev.User,
			Text:            ev.Text,
			TimeStamp:       ev.TimeStamp,
			ThreadTimeStamp: ev.ThreadTimeStamp,
		}, Accepted

	case *slackevents.MessageEvent:
		switch {
		case ev.BotID != "":
			return nil, IgnoredBot
		case ev.SubType != "":
			return nil, IgnoredSubtype
		case botUserID != "" && ev.User == botUserID:
			return nil, IgnoredSelf
		case ev.ChannelType != "im":
			return nil, IgnoredChannel
		case ev.Text == "":
			return nil, IgnoredEmpty
		}
		return DirectMessageEvent{
			Channel:         ev.Channel,
			User:            ev.User,
			Text:            ev.Text,
			TimeStamp:       ev.TimeStamp,
			ThreadTimeStamp: ev.ThreadTimeStamp,
		}, Accepted
	}
	return nil, IgnoredType
}

// eventType is the metrics label for an event variant.
func eventType(data interface{}) string {
	switch data.(type) {
	case *slackevents.AppMentionEvent, MentionEvent:
		return "app_mention"
	case *slackevents.MessageEvent, DirectMessageEvent:
		return "message"
	}
	return "other"
}

// IsFirstMessage reports whether ev starts a new thread.
func IsFirstMessage(ev Event) bool {
	return ev.ThreadTS() == ""
}

// ThreadRoot returns the timestamp replies to ev are posted under.
func ThreadRoot(ev Event) string {
	if ts := ev.ThreadTS(); ts != "" {
		return ts
	}
	return ev.Timestamp()
}

// ConversationID maps a Slack thread to a stable remote conversation id.
// Every message of a thread yields the same id.
func ConversationID(ev Event) string {
	return uuid.NewSHA1(conversationNamespace, []byte(ev.ChannelID()+":"+ThreadRoot(ev))).String()
}
