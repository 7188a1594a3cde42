// Package mention rewrites Slack user mention tokens (<@U123> or
// <@U123|label>) into display names.
package mention

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// tokenPattern matches a user mention. Group 1 is the user ID.
var tokenPattern = regexp.MustCompile(`<@([UW][A-Z0-9]+)(?:\|[^>]*)?>`)

// Resolver looks up the display name of a user.
type Resolver interface {
	ResolveDisplayName(ctx context.Context, userID string) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, userID string) (string, error)

// ResolveDisplayName implements Resolver.
func (f ResolverFunc) ResolveDisplayName(ctx context.Context, userID string) (string, error) {
	return f(ctx, userID)
}

// Options controls a single Sanitize call.
type Options struct {
	// BotUserID is the ID of the bot itself.
	BotUserID string

	// StripLeadingBotMention removes the bot's own token when it opens the
	// text. Set on the first message of a thread, where it only addresses
	// the bot.
	StripLeadingBotMention bool
}

// Sanitizer replaces mention tokens using a Resolver.
type Sanitizer struct {
	resolver    Resolver
	concurrency int
	logger      *zap.Logger

	// OnResolveError is called once per user ID that could not be
	// resolved. It may be nil.
	OnResolveError func(userID string, err error)
}

// NewSanitizer returns a Sanitizer resolving at most concurrency names at a
// time. A nil resolver leaves every token untouched.
func NewSanitizer(resolver Resolver, concurrency int, logger *zap.Logger) *Sanitizer {
	if concurrency <= 0 {
		concurrency = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sanitizer{
		resolver:    resolver,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Sanitize returns text with every resolvable mention replaced by the
// user's display name. A token whose lookup fails or yields an empty name
// is kept as is. Sanitize never fails and leaves text without tokens
// unchanged.
func (s *Sanitizer) Sanitize(ctx context.Context, text string, opts Options) string {
	if opts.StripLeadingBotMention && opts.BotUserID != "" {
		text = stripLeading(text, opts.BotUserID)
	}

	matches := tokenPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 || s.resolver == nil {
		return text
	}

	names := s.resolve(ctx, text, matches)

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		id := text[m[2]:m[3]]
		name, ok := names[id]
		if !ok {
			continue
		}
		b.WriteString(text[last:m[0]])
		b.WriteString(name)
		last = m[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

// resolve looks up every distinct user ID in matches. IDs that fail are
// absent from the result.
func (s *Sanitizer) resolve(ctx context.Context, text string, matches [][]int) map[string]string {
	ids := make([]string, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		id := text[m[2]:m[3]]
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	var (
		mu    sync.Mutex
		names = make(map[string]string, len(ids))
	)

	// Lookups never return an error to the group: one failed ID must not
	// cancel the others.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			name, err := s.resolver.ResolveDisplayName(gctx, id)
			if err == nil && name == "" {
				err = errEmptyName
			}
			if err != nil {
				s.logger.Debug("mention left unresolved",
					zap.String("user_id", id),
					zap.Error(err),
				)
				if s.OnResolveError != nil {
					s.OnResolveError(id, err)
				}
				return nil
			}
			mu.Lock()
			names[id] = name
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return names
}

// stripLeading removes the bot's token, with its surrounding whitespace,
// when it is the first thing in text.
func stripLeading(text, botUserID string) string {
	trimmed := strings.TrimLeft(text, " \t\r\n")
	loc := tokenPattern.FindStringSubmatchIndex(trimmed)
	if loc == nil || loc[0] != 0 || trimmed[loc[2]:loc[3]] != botUserID {
		return text
	}
	return strings.TrimLeft(trimmed[loc[1]:], " \t\r\n")
}
