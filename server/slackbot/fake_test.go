package slackbot

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/slack-go/slack"

	"github.com/coral-p2025/coral/chat"
	"github.com/coral-p2025/coral/server/processing"
)

var errUnknownUser = errors.New("user_not_found")

type postedMessage struct {
	Channel string
	Values  url.Values
}

type fakeAPI struct {
	users    map[string]*slack.User
	botID    string
	postErr  error
	lookups  atomic.Int32
	mu       sync.Mutex
	messages []postedMessage
}

func (f *fakeAPI) GetUserInfoContext(ctx context.Context, user string) (*slack.User, error) {
	f.lookups.Add(1)
	u, ok := f.users[user]
	if !ok {
		return nil, errUnknownUser
	}
	return u, nil
}

func (f *fakeAPI) AuthTestContext(ctx context.Context) (*slack.AuthTestResponse, error) {
	return &slack.AuthTestResponse{UserID: f.botID, Team: "coral"}, nil
}

func (f *fakeAPI) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	if f.postErr != nil {
		return "", "", f.postErr
	}
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	_, values, err := slack.UnsafeApplyMsgOptions("xoxb-test", channelID, "https://slack.test/api/", options...)
	if err != nil {
		return "", "", err
	}
	f.mu.Lock()
	f.messages = append(f.messages, postedMessage{Channel: channelID, Values: values})
	f.mu.Unlock()
	return channelID, "1700000000.000200", nil
}

func (f *fakeAPI) posted() []postedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]postedMessage(nil), f.messages...)
}

type fakeReplier struct {
	result chat.ReplyResult
	mu     sync.Mutex
	args   []processing.ReplyArgs
}

func (f *fakeReplier) GetReply(ctx context.Context, args processing.ReplyArgs) chat.ReplyResult {
	f.mu.Lock()
	f.args = append(f.args, args)
	f.mu.Unlock()
	return f.result
}

func (f *fakeReplier) calls() []processing.ReplyArgs {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]processing.ReplyArgs(nil), f.args...)
}
