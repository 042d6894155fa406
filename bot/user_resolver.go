package bot

import (
	"context"
	"fmt"
	"sync"

	"github.com/slack-go/slack"

	"pepubot/service"
)

// userResolver resolves user ids to display names, caching results for the
// process lifetime.
type userResolver struct {
	api *slack.Client

	mu    sync.Mutex
	cache map[string]string
}

// NewUserResolver wraps a Slack client in the runner's display-name lookup
// interface.
func NewUserResolver(api *slack.Client) service.UserResolver {
	return &userResolver{api: api, cache: make(map[string]string)}
}

func (r *userResolver) ResolveDisplayName(ctx context.Context, userID string) (string, error) {
	r.mu.Lock()
	name, ok := r.cache[userID]
	r.mu.Unlock()
	if ok {
		return name, nil
	}

	user, err := r.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to look up user %s: %w", userID, err)
	}
	if user == nil || user.Name == "" {
		return "", fmt.Errorf("chat service returned invalid user info for %s", userID)
	}

	r.mu.Lock()
	r.cache[userID] = user.Name
	r.mu.Unlock()
	return user.Name, nil
}
