package mention

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func directory(names map[string]string) ResolverFunc {
	return func(ctx context.Context, userID string) (string, error) {
		name, ok := names[userID]
		if !ok {
			return "", errors.New("user_not_found")
		}
		return name, nil
	}
}

func TestSanitize(t *testing.T) {
	resolver := directory(map[string]string{
		"UBOT":   "coral",
		"U111":   "Ada",
		"U222":   "Grace",
		"UEMPTY": "",
	})

	tests := []struct {
		name string
		text string
		opts Options
		want string
	}{
		{
			name: "no tokens",
			text: "What does Project 2025 say about the EPA?",
			want: "What does Project 2025 say about the EPA?",
		},
		{
			name: "leading bot mention stripped on first message",
			text: "<@UBOT> what is Schedule F?",
			opts: Options{BotUserID: "UBOT", StripLeadingBotMention: true},
			want: "what is Schedule F?",
		},
		{
			name: "leading whitespace before bot mention",
			text: "  <@UBOT>\n what is Schedule F?",
			opts: Options{BotUserID: "UBOT", StripLeadingBotMention: true},
			want: "what is Schedule F?",
		},
		{
			name: "bot mention resolved on later messages",
			text: "<@UBOT> what is Schedule F?",
			opts: Options{BotUserID: "UBOT"},
			want: "coral what is Schedule F?",
		},
		{
			name: "only the leading bot mention is stripped",
			text: "<@UBOT> ask <@UBOT> again",
			opts: Options{BotUserID: "UBOT", StripLeadingBotMention: true},
			want: "ask coral again",
		},
		{
			name: "other user first is not stripped",
			text: "<@U111> <@UBOT> hello",
			opts: Options{BotUserID: "UBOT", StripLeadingBotMention: true},
			want: "Ada coral hello",
		},
		{
			name: "labelled token",
			text: "cc <@U222|grace.h>",
			want: "cc Grace",
		},
		{
			name: "failed lookup keeps raw token",
			text: "<@U111> and <@U999> and <@U222>",
			want: "Ada and <@U999> and Grace",
		},
		{
			name: "empty display name keeps raw token",
			text: "hi <@UEMPTY>",
			want: "hi <@UEMPTY>",
		},
		{
			name: "channel and group mentions untouched",
			text: "<!here> <#C123|general>",
			want: "<!here> <#C123|general>",
		},
	}

	s := NewSanitizer(resolver, 4, zaptest.NewLogger(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Sanitize(context.Background(), tt.text, tt.opts))
		})
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	s := NewSanitizer(directory(map[string]string{"U111": "Ada"}), 2, nil)
	once := s.Sanitize(context.Background(), "hello <@U111>", Options{})
	assert.Equal(t, once, s.Sanitize(context.Background(), once, Options{}))
}

func TestSanitizeNilResolver(t *testing.T) {
	s := NewSanitizer(nil, 0, nil)
	assert.Equal(t, "hi <@U111>", s.Sanitize(context.Background(), "hi <@U111>", Options{}))
	assert.Equal(t, "hi", s.Sanitize(context.Background(), "<@UBOT> hi", Options{BotUserID: "UBOT", StripLeadingBotMention: true}))
}

func TestSanitizeResolvesEachIDOnce(t *testing.T) {
	var calls int32
	resolver := ResolverFunc(func(ctx context.Context, userID string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "Ada", nil
	})

	s := NewSanitizer(resolver, 4, nil)
	got := s.Sanitize(context.Background(), "<@U111> <@U111> <@U111|ada>", Options{})

	assert.Equal(t, "Ada Ada Ada", got)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSanitizeSlowFailureDoesNotBlockOthers(t *testing.T) {
	var (
		mu     sync.Mutex
		failed []string
	)
	resolver := ResolverFunc(func(ctx context.Context, userID string) (string, error) {
		if userID == "USLOW" {
			time.Sleep(20 * time.Millisecond)
			return "", errors.New("timeout")
		}
		return "Grace", nil
	})

	s := NewSanitizer(resolver, 2, nil)
	s.OnResolveError = func(userID string, err error) {
		mu.Lock()
		failed = append(failed, userID)
		mu.Unlock()
	}

	got := s.Sanitize(context.Background(), "<@USLOW> <@U222>", Options{})
	assert.Equal(t, "<@USLOW> Grace", got)
	assert.Equal(t, []string{"USLOW"}, failed)
}

func TestSanitizeRespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak int32
	resolver := ResolverFunc(func(ctx context.Context, userID string) (string, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return "x", nil
	})

	s := NewSanitizer(resolver, 2, nil)
	s.Sanitize(context.Background(), "<@U1> <@U2> <@U3> <@U4> <@U5> <@U6>", Options{})

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}
