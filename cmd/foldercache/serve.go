package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"foldercache/internal/api"

	"github.com/spf13/cobra"
)

func newServeCommand(options *rootOptions) *cobra.Command {
	var allowedOrigins []string
	var loadTimeout time.Duration
	command := &cobra.Command{
		Use:   "serve",
		Short: "Serve folder snapshots and change streams over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), options, serveOptions{
				AllowedOrigins: allowedOrigins,
				LoadTimeout:    loadTimeout,
			})
		},
	}
	command.Flags().StringSliceVar(&allowedOrigins, "allow-origin", nil, "Websocket origins to accept besides the listen host")
	command.Flags().DurationVar(&loadTimeout, "load-timeout", 10*time.Second, "How long snapshot requests wait for a folder to load")
	return command
}

type serveOptions struct {
	AllowedOrigins []string
	LoadTimeout    time.Duration
}

func runServe(parent context.Context, options *rootOptions, serve serveOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	svc, err := startService(ctx, options, os.Stdout, serviceOptions{Watch: true, Mounts: true, Buses: true})
	if err != nil {
		return err
	}
	logger := svc.logger

	signalCh := make(chan os.Signal, 2)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)
	stopSignals := watchShutdownSignals(logger, cancel, signalCh)
	defer stopSignals()

	mux := http.NewServeMux()
	api.RegisterRoutes(mux, api.Dependencies{
		Registry:       svc.registry,
		Logger:         logger,
		Metrics:        svc.metrics,
		FolderBus:      svc.folderBus,
		MountBus:       svc.mountBus,
		AuthToken:      svc.config.AuthToken,
		AllowedOrigins: serve.AllowedOrigins,
		LoadTimeout:    serve.LoadTimeout,
		StartedAt:      time.Now(),
	})

	listener, err := net.Listen("tcp", svc.config.Listen)
	if err != nil {
		_ = svc.shutdown.Run(context.Background())
		return err
	}
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("foldercache listening", map[string]string{
		"addr": listener.Addr().String(),
	})

	runner := &serverRunner{Logger: logger, ShutdownTimeout: httpServerShutdownTimeout}
	serveErr := runner.Run(ctx, managedServer{
		Name:     "api",
		Serve:    func() error { return server.Serve(listener) },
		Shutdown: server.Shutdown,
	})

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), httpServerShutdownTimeout)
	defer shutdownCancel()
	shutdownErr := svc.shutdown.Run(shutdownCtx)
	if serveErr != nil {
		return errors.Join(serveErr.err, shutdownErr)
	}
	return shutdownErr
}
