package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cbodonnell/tabletop/pkg/api"
	"github.com/cbodonnell/tabletop/pkg/config"
	"github.com/cbodonnell/tabletop/pkg/events"
	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/metrics"
	"github.com/cbodonnell/tabletop/pkg/network"
	"github.com/cbodonnell/tabletop/pkg/persistence"
	"github.com/cbodonnell/tabletop/pkg/queue"
	"github.com/cbodonnell/tabletop/pkg/repositories"
	"github.com/cbodonnell/tabletop/pkg/session"
	"github.com/cbodonnell/tabletop/pkg/state"
	"github.com/cbodonnell/tabletop/pkg/version"
	"github.com/cbodonnell/tabletop/pkg/workers"
	"github.com/spf13/cobra"
)

type options struct {
	host     string
	port     int
	logLevel string
	envFile  string
}

func main() {
	opts := options{}
	cmd := &cobra.Command{
		Use:          "tabletop-server",
		Short:        "Run the tabletop session server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.host, "host", "", "Host to listen on")
	cmd.Flags().IntVar(&opts.port, "port", 8080, "Port to listen on")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "Log level")
	cmd.Flags().StringVar(&opts.envFile, "env-file", ".env", "Optional file of environment variables")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	parsedLogLevel, err := log.ParseLogLevel(opts.logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)
	log.Info("Starting server version %s", version.Get())

	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	repository, err := repositories.New(ctx, repositories.NewRepositoryOptions{
		URL:     cfg.StoreURL,
		APIKey:  cfg.StoreAPIKey,
		Timeout: cfg.StoreTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create repository: %v", err)
	}
	defer repository.Close(context.Background())

	m := metrics.New()
	eventQueue := queue.NewInMemoryQueue[events.Event](10000)

	sessionManager := session.NewSessionManager(session.NewSessionManagerOptions{
		EventQueue: eventQueue,
		Registry:   network.NewConnectionRegistry(),
		Store:      state.NewStore(),
		Gateway: persistence.NewGateway(persistence.NewGatewayOptions{
			Repository: repository,
			Timeout:    cfg.StoreTimeout,
		}),
		Metrics: m,
	})

	wsServer := network.NewWSServer(network.NewWSServerOptions{
		AllowedOrigins:    cfg.AllowedOrigins,
		ConnectHandler:    sessionManager.HandleConnect,
		MessageHandler:    sessionManager.HandleMessage,
		DisconnectHandler: sessionManager.HandleDisconnect,
		DecodeErrHandler:  sessionManager.HandleDecodeError,
	})

	var tls *api.TLSConfig
	if cfg.TLSCertFile != "" {
		tls = &api.TLSConfig{CertFile: cfg.TLSCertFile, KeyFile: cfg.TLSKeyFile}
	}
	if cfg.AdminToken == "" {
		log.Warn("%s is not set, admin endpoints under /api are disabled", config.EnvAdminToken)
	}
	apiServer := api.NewAPIServer(api.NewAPIServerOptions{
		Host:       opts.host,
		Port:       opts.port,
		TLS:        tls,
		Session:    sessionManager,
		AdminToken: cfg.AdminToken,
		WebSocket:  wsServer,
		Metrics:    m.Handler(),
	})

	sessionDone := make(chan error, 1)
	go func() {
		sessionDone <- sessionManager.Start(ctx)
	}()

	autosaveWorker := workers.NewAutosaveWorker(workers.NewAutosaveWorkerOptions{
		EventQueue: eventQueue,
		Interval:   cfg.AutosaveInterval,
	})
	go autosaveWorker.Start(ctx)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- apiServer.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err = <-serverErr:
		stop()
	}

	wsServer.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if stopErr := apiServer.Stop(shutdownCtx); stopErr != nil {
		log.Error("Failed to stop server: %v", stopErr)
	}

	if sessionErr := <-sessionDone; sessionErr != nil {
		log.Error("Session manager stopped with error: %v", sessionErr)
	}
	return err
}
