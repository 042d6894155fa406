package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/slack-go/slack"

	"pepubot/bot"
	"pepubot/config"
	"pepubot/service"
	"pepubot/storage"
)

// Run initializes and starts the application
func Run(ctx context.Context, settingsFile string) error {
	cfg, err := config.Load(settingsFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}

	log.Infof("Using storage file %s", cfg.StorageFile)
	registry := storage.NewRegistry()
	store := storage.NewStore(registry, cfg.StorageFile)

	log.Info("Initializing the Slack client")
	api := slack.New(cfg.SlackAPIToken, slack.OptionAppLevelToken(cfg.SlackAppToken))

	runner := service.NewRunner(store, bot.NewChatClient(api), bot.NewUserResolver(api), loc)

	log.Info("Starting the Slack event loop")
	if err := bot.New(api, runner).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
