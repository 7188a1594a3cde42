package slackbot

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"golang.org/x/sync/singleflight"

	"github.com/coral-p2025/coral/server/mention"
)

// UsersAPI is the part of the Slack Web API used to look up users.
type UsersAPI interface {
	GetUserInfoContext(ctx context.Context, user string) (*slack.User, error)
}

// UserDirectory resolves Slack user ids to display names. Concurrent
// lookups of the same id share one Web API call.
type UserDirectory struct {
	api   UsersAPI
	group singleflight.Group
}

var _ mention.Resolver = (*UserDirectory)(nil)

// NewUserDirectory creates a directory backed by api.
func NewUserDirectory(api UsersAPI) *UserDirectory {
	return &UserDirectory{api: api}
}

// ResolveDisplayName implements mention.Resolver. It prefers the profile
// display name, then the real name, then the user name.
func (d *UserDirectory) ResolveDisplayName(ctx context.Context, userID string) (string, error) {
	v, err, _ := d.group.Do(userID, func() (interface{}, error) {
		user, err := d.api.GetUserInfoContext(ctx, userID)
		if err != nil {
			return "", fmt.Errorf("get user %s: %w", userID, err)
		}
		return displayName(user), nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func displayName(u *slack.User) string {
	for _, name := range []string{u.Profile.DisplayName, u.Profile.RealName, u.RealName, u.Name} {
		if name != "" {
			return name
		}
	}
	return ""
}
