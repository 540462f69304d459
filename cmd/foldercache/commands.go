package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"foldercache"
	"foldercache/internal/config"
	"foldercache/internal/logging"
	"foldercache/internal/version"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	listen     string
	logLevel   string
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	options := &rootOptions{}
	root := &cobra.Command{
		Use:   "foldercache",
		Short: "Cache folder contents and stream coalesced change notifications",
		Long: `foldercache keeps an in-memory model of watched directories and delivers
batched notifications when their contents change.

Examples:
  # Serve the HTTP and websocket API
  foldercache serve --listen 127.0.0.1:8788

  # Print a directory listing once it has loaded
  foldercache ls /srv/data

  # Stream change notifications for a directory
  foldercache watch /srv/data
`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&options.configPath, "config", "", "Path to a YAML config file")
	flags.StringVar(&options.listen, "listen", "", "HTTP listen address (overrides config)")
	flags.StringVar(&options.logLevel, "log-level", "", "Log level: debug, info, warning or error")

	root.AddCommand(
		newServeCommand(options),
		newWatchCommand(options),
		newListCommand(options),
		newVersionCommand(),
	)
	return root
}

// loadSettings resolves the config file, environment and flag overrides.
func loadSettings(options *rootOptions) (config.Config, error) {
	cfg, err := config.Load(options.configPath, foldercache.DefaultConfig, nil)
	if err != nil {
		return config.Config{}, err
	}
	if listen := strings.TrimSpace(options.listen); listen != "" {
		cfg.Listen = listen
	}
	if level := strings.TrimSpace(options.logLevel); level != "" {
		if _, ok := logging.ParseLevel(level); !ok {
			return config.Config{}, fmt.Errorf("unknown log level %q", level)
		}
		cfg.Log.Level = level
	}
	return cfg, nil
}

func newVersionCommand() *cobra.Command {
	var jsonOutput bool
	command := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.GetVersionInfo()
			out := cmd.OutOrStdout()
			if jsonOutput {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(info)
			}
			_, err := fmt.Fprintln(out, info.String())
			return err
		},
	}
	command.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return command
}
