// Package bot adapts the Slack transport to the runner: it feeds inbound
// Socket Mode events into the state machine and implements the outbound chat
// operations over the Slack Web API.
package bot

import (
	"context"
	"encoding/json"

	log "github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"pepubot/models"
	"pepubot/service"
)

// Bot connects the Slack event stream to the runner.
type Bot struct {
	api    *slack.Client
	socket *socketmode.Client
	runner *service.Runner
}

// New creates a bot over an already-configured Slack client.
func New(api *slack.Client, runner *service.Runner) *Bot {
	return &Bot{
		api:    api,
		socket: socketmode.New(api),
		runner: runner,
	}
}

// Run opens the Socket Mode connection and handles events until ctx is
// cancelled.
func (b *Bot) Run(ctx context.Context) error {
	go b.handleEvents(ctx)
	return b.socket.RunContext(ctx)
}

func (b *Bot) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-b.socket.Events:
			if !ok {
				return
			}
			switch evt.Type {
			case socketmode.EventTypeConnected:
				log.Info("Connected to Slack")
			case socketmode.EventTypeConnectionError:
				log.WithField("data", evt.Data).Warn("Slack connection error")
			case socketmode.EventTypeEventsAPI:
				if evt.Request == nil {
					continue
				}
				b.socket.Ack(*evt.Request)
				b.handleEventsAPIPayload(ctx, evt.Request.Payload)
			}
		}
	}
}

// handleEventsAPIPayload extracts the inner event from an Events API envelope
// and feeds message events to the runner.
func (b *Bot) handleEventsAPIPayload(ctx context.Context, payload json.RawMessage) {
	var envelope struct {
		Event json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		log.WithError(err).Warn("Failed to decode events API envelope")
		return
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(envelope.Event, &head); err != nil || head.Type != "message" {
		return
	}

	var event models.MessageEvent
	if err := json.Unmarshal(envelope.Event, &event); err != nil {
		log.WithError(err).Warn("Failed to decode message event")
		return
	}

	if err := b.runner.FeedMessage(ctx, &event); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"channel": event.Channel,
			"ts":      event.Ts,
		}).Error("Failed to handle message")
	}
}
