package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pepubot/cmd"
)

func main() {
	var settingsFile string

	root := &cobra.Command{
		Use:          "pepubot",
		Short:        "Chat bot that runs the PePu lottery",
		SilenceUsage: true,
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			// Handle graceful shutdown
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigChan
				log.Println("Received shutdown signal, shutting down gracefully...")
				cancel()
			}()

			return cmd.Run(ctx, settingsFile)
		},
	}
	root.Flags().StringVarP(&settingsFile, "config-file", "c", "pepubot.conf", "Path to configuration file")

	if err := root.Execute(); err != nil {
		log.Fatal("Application error: ", err)
	}
}
