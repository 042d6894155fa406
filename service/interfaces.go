package service

import (
	"context"
	"errors"
)

// ErrAlreadyReacted is returned by ChatClient.AddReaction when the requested
// marker is already present on the message. All other transport errors
// propagate unchanged.
var ErrAlreadyReacted = errors.New("already reacted")

// ChatClient defines the outbound chat operations the runner depends on.
type ChatClient interface {
	// PostMessage posts text to a channel.
	PostMessage(ctx context.Context, channel, text string) error

	// AddReaction adds a named reaction marker to the message identified by
	// channel and timestamp. Returns ErrAlreadyReacted if the marker is
	// already present.
	AddReaction(ctx context.Context, name, channel, timestamp string) error

	// GetPermalink resolves a permanent link to the message identified by
	// channel and timestamp.
	GetPermalink(ctx context.Context, channel, timestamp string) (string, error)
}

// UserResolver resolves user ids to display names.
type UserResolver interface {
	// ResolveDisplayName returns the display name for a user id. A malformed
	// remote response is an error, never an empty name.
	ResolveDisplayName(ctx context.Context, userID string) (string, error)
}
