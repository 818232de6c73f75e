package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cbodonnell/tabletop/pkg/client"
	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/messages"
	"github.com/cbodonnell/tabletop/pkg/queue"
	"github.com/cbodonnell/tabletop/pkg/types"
	"github.com/spf13/cobra"
)

func main() {
	var serverAddr, name, logLevel string
	cmd := &cobra.Command{
		Use:          "tabletop-bot",
		Short:        "Join a tabletop session as a headless participant",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedLogLevel, err := log.ParseLogLevel(logLevel)
			if err != nil {
				return fmt.Errorf("failed to parse log level: %v", err)
			}
			log.SetLevel(parsedLogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, serverAddr, types.Identity(name))
		},
	}
	cmd.Flags().StringVar(&serverAddr, "server", "ws://localhost:8080/ws", "Server websocket url")
	cmd.Flags().StringVar(&name, "name", "Bot", "Name to register as")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, serverAddr string, name types.Identity) error {
	messageQueue := queue.NewInMemoryQueue[*messages.Message](1000)
	wsClient := client.NewWSClient(serverAddr, messageQueue)
	if err := wsClient.Connect(ctx); err != nil {
		return err
	}
	defer wsClient.Close()

	bot := client.NewBot(wsClient, name)
	go bot.Run(ctx, messageQueue.Chan())

	if err := bot.Register(); err != nil {
		return fmt.Errorf("failed to register: %v", err)
	}
	log.Info("Registered as %s on %s", name, serverAddr)

	if err := wsClient.HandleMessages(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
