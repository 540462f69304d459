package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"foldercache/internal/folder"

	"github.com/spf13/cobra"
)

func newWatchCommand(options *rootOptions) *cobra.Command {
	var incremental bool
	command := &cobra.Command{
		Use:   "watch PATH",
		Short: "Print folder notifications as JSON lines until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runWatch(ctx, options, args[0], incremental, cmd.OutOrStdout())
		},
	}
	command.Flags().BoolVar(&incremental, "incremental", false, "Report listing batches as they arrive")
	return command
}

func runWatch(ctx context.Context, options *rootOptions, path string, incremental bool, out io.Writer) error {
	svc, err := startService(ctx, options, os.Stderr, serviceOptions{Watch: true, Mounts: true})
	if err != nil {
		return err
	}
	defer func() { _ = svc.shutdown.Run(context.Background()) }()

	acquire := svc.registry.Acquire
	if incremental {
		acquire = svc.registry.AcquireIncremental
	}
	current, err := acquire(path)
	if err != nil {
		return err
	}
	defer current.Release()

	var writeMu sync.Mutex
	encoder := json.NewEncoder(out)
	failed := make(chan error, 1)
	unsubscribe := current.Subscribe(func(event folder.Event) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := encoder.Encode(event); err != nil {
			select {
			case failed <- fmt.Errorf("write event: %w", err):
			default:
			}
		}
		if event.EventType == folder.EventRemoved || event.EventType == folder.EventUnmounted {
			select {
			case failed <- nil:
			default:
			}
		}
	})
	defer unsubscribe()

	select {
	case <-ctx.Done():
		return nil
	case err := <-failed:
		return err
	}
}
