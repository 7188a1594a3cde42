package slackbot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/coral-p2025/coral/chat"
	"github.com/coral-p2025/coral/config"
	"github.com/coral-p2025/coral/server/processing"
)

type gatedReplier struct {
	release chan struct{}
}

func (g gatedReplier) GetReply(ctx context.Context, args processing.ReplyArgs) chat.ReplyResult {
	<-g.release
	return chat.ReplyResult{BotReplyText: "answer to " + args.Event.GetText()}
}

func TestServiceStopPostsQueuedReplies(t *testing.T) {
	api := &fakeAPI{botID: "UBOT"}
	replier := gatedReplier{release: make(chan struct{})}
	svc, err := NewWithAPI(config.SlackConfig{Mode: "events", SigningSecret: testSecret, Workers: 1, QueueSize: 10},
		api, replier, zaptest.NewLogger(t), nil)
	require.NoError(t, err)

	root, cancelRoot := context.WithCancel(context.Background())
	require.NoError(t, svc.Start(root))
	for _, ts := range []string{"1.1", "2.1", "3.1"} {
		require.NoError(t, svc.Dispatcher.Submit(MentionEvent{Channel: "C1", User: "U1", Text: ts, TimeStamp: ts}))
	}

	// Shutdown signal arrives before any reply is ready.
	cancelRoot()
	close(replier.release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Stop(ctx))

	posted := api.posted()
	require.Len(t, posted, 3)
	for i, ts := range []string{"1.1", "2.1", "3.1"} {
		assert.Equal(t, "answer to "+ts, posted[i].Values.Get("text"))
		assert.Equal(t, ts, posted[i].Values.Get("thread_ts"))
	}
}
