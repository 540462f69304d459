package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"foldercache/internal/fileinfo"

	"github.com/spf13/cobra"
)

func newListCommand(options *rootOptions) *cobra.Command {
	var jsonOutput bool
	var timeout time.Duration
	command := &cobra.Command{
		Use:   "ls PATH",
		Short: "Load a folder and print its contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), options, args[0], listOptions{
				JSON:    jsonOutput,
				Timeout: timeout,
			}, cmd.OutOrStdout())
		},
	}
	command.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	command.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "How long to wait for the listing")
	return command
}

type listOptions struct {
	JSON    bool
	Timeout time.Duration
}

func runList(ctx context.Context, options *rootOptions, path string, list listOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	svc, err := startService(ctx, options, os.Stderr, serviceOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = svc.shutdown.Run(context.Background()) }()

	current, err := svc.registry.Acquire(path)
	if err != nil {
		return err
	}
	defer current.Release()

	waitCtx := ctx
	if list.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, list.Timeout)
		defer cancel()
	}
	if err := current.WaitLoaded(waitCtx); err != nil {
		return fmt.Errorf("wait for %s: %w", current.Path(), err)
	}
	if !current.IsValid() {
		return fmt.Errorf("%s could not be listed", current.Path())
	}

	files := current.Snapshot()
	if list.JSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(files)
	}
	return writeListing(out, files)
}

func writeListing(out io.Writer, files []*fileinfo.Info) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, file := range files {
		name := file.Name
		if file.IsDir {
			name += "/"
		}
		fmt.Fprintf(writer, "%s\t%d\t%s\t%s\n", file.Mode, file.Size, file.ModTime.Format(time.RFC3339), name)
	}
	return writer.Flush()
}
