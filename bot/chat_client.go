package bot

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"pepubot/service"
)

// alreadyReactedErrorCode is the error code the Slack Web API returns when a
// reaction is already present. The client library surfaces the code as the
// error string; it is matched verbatim.
const alreadyReactedErrorCode = "already_reacted"

type chatClient struct {
	api *slack.Client
}

// NewChatClient wraps a Slack client in the runner's outbound chat interface.
func NewChatClient(api *slack.Client) service.ChatClient {
	return &chatClient{api: api}
}

func (c *chatClient) PostMessage(ctx context.Context, channel, text string) error {
	if _, _, err := c.api.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("failed to post message to %s: %w", channel, err)
	}
	return nil
}

func (c *chatClient) AddReaction(ctx context.Context, name, channel, timestamp string) error {
	err := c.api.AddReactionContext(ctx, name, slack.NewRefToMessage(channel, timestamp))
	if err != nil {
		if err.Error() == alreadyReactedErrorCode {
			return service.ErrAlreadyReacted
		}
		return fmt.Errorf("failed to add reaction %s: %w", name, err)
	}
	return nil
}

func (c *chatClient) GetPermalink(ctx context.Context, channel, timestamp string) (string, error) {
	permalink, err := c.api.GetPermalinkContext(ctx, &slack.PermalinkParameters{
		Channel: channel,
		Ts:      timestamp,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get permalink: %w", err)
	}
	return permalink, nil
}
