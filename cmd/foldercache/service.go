package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"foldercache/internal/config"
	"foldercache/internal/event"
	"foldercache/internal/folder"
	"foldercache/internal/localfs"
	"foldercache/internal/logging"
	"foldercache/internal/metrics"
	"foldercache/internal/mounts"
	"foldercache/internal/watcher"

	"github.com/spf13/afero"
)

type serviceOptions struct {
	// Watch enables filesystem notifications. One-shot commands leave it off.
	Watch  bool
	Mounts bool
	Buses  bool
}

// service holds the components shared by the commands.
type service struct {
	config    config.Config
	logger    *logging.Logger
	metrics   *metrics.Registry
	registry  *folder.Registry
	folderBus *event.Bus[folder.Event]
	mountBus  *event.Bus[event.MountEvent]
	shutdown  *shutdownCoordinator
}

func newLogger(cfg config.Config, console io.Writer) (*logging.Logger, io.Closer, error) {
	fileWriter, err := logging.NewRotatingWriter(logging.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	var output io.Writer = console
	if fileWriter != nil {
		output = logging.MultiOutput(console, fileWriter)
	}
	logger := logging.NewLoggerWithOutput(logging.NewLogBuffer(logging.DefaultBufferSize), cfg.LogLevel(), output)
	return logger, fileWriter, nil
}

func newService(ctx context.Context, cfg config.Config, logger *logging.Logger, logFile io.Closer, options serviceOptions) (*service, error) {
	svc := &service{
		config:   cfg,
		logger:   logger,
		metrics:  metrics.Default,
		shutdown: newShutdownCoordinator(logger),
	}
	local := localfs.New(afero.NewOsFs(), localfs.Options{
		Workers: cfg.Listing.Workers,
		Logger:  logger.WithComponent("localfs"),
	})
	registryOptions := folder.Options{
		Lister:           local,
		Inspector:        local,
		DirMaker:         local,
		Capacity:         localfs.Capacity{},
		Logger:           logger,
		Metrics:          svc.metrics,
		ReloadDelay:      cfg.Folder.ReloadDelay,
		DeferContentTest: cfg.Folder.DeferContentTest,
	}

	if options.Buses {
		svc.folderBus = event.NewBus[folder.Event](ctx, event.BusOptions{
			Name:     "folder_events",
			Registry: svc.metrics,
			Logger:   logger,
		})
		svc.mountBus = event.NewBus[event.MountEvent](ctx, event.BusOptions{
			Name:        "mount_events",
			Registry:    svc.metrics,
			Logger:      logger,
			HistorySize: 32,
		})
		registryOptions.Bus = svc.folderBus
		registryOptions.MountBus = svc.mountBus
	}

	var fsWatcher *watcher.Watcher
	if options.Watch {
		watchLogger := logger.WithComponent("watcher")
		created, err := watcher.NewWithOptions(watcher.Options{
			Logger:     watchLogger,
			Metrics:    svc.metrics,
			Debounce:   cfg.Watch.Debounce,
			MaxWatches: cfg.Watch.MaxWatches,
			OnFailure: func(err error) {
				watchLogger.Error("change monitor failed, folders will not update", map[string]string{"error": err.Error()})
			},
		})
		if err != nil {
			return nil, fmt.Errorf("start watcher: %w", err)
		}
		fsWatcher = created
		registryOptions.Monitor = fsWatcher
	}

	var mountMonitor *mounts.Monitor
	if options.Mounts && cfg.Mounts.Enabled {
		created, err := mounts.NewMonitor(mounts.Options{
			Table:        cfg.Mounts.Table,
			PollInterval: cfg.Mounts.PollInterval,
			Logger:       logger.WithComponent("mounts"),
		})
		if err != nil {
			// Folder contents still work without mount tracking.
			logger.Warn("mount monitor unavailable", map[string]string{
				"table": cfg.Mounts.Table,
				"error": err.Error(),
			})
		} else {
			mountMonitor = created
			registryOptions.Mounts = mountMonitor
		}
	}

	registry, err := folder.NewRegistry(registryOptions)
	if err != nil {
		if fsWatcher != nil {
			_ = fsWatcher.Close()
		}
		if mountMonitor != nil {
			_ = mountMonitor.Close()
		}
		return nil, err
	}
	svc.registry = registry

	svc.shutdown.Add("folder registry", func(context.Context) error {
		registry.Close()
		return nil
	})
	if mountMonitor != nil {
		svc.shutdown.Add("mount monitor", func(context.Context) error {
			return mountMonitor.Close()
		})
	}
	if fsWatcher != nil {
		svc.shutdown.Add("watcher", func(context.Context) error {
			return fsWatcher.Close()
		})
	}
	if svc.folderBus != nil {
		svc.shutdown.Add("event buses", func(context.Context) error {
			svc.folderBus.Close()
			svc.mountBus.Close()
			return nil
		})
	}

	svc.shutdown.Add("log streams", func(context.Context) error {
		logger.Close()
		return nil
	})
	if logFile != nil {
		svc.shutdown.Add("log file", func(context.Context) error {
			return logFile.Close()
		})
	}

	logger.Debug("folder cache ready", map[string]string{
		"watch":  strconv.FormatBool(fsWatcher != nil),
		"mounts": strconv.FormatBool(mountMonitor != nil),
	})
	return svc, nil
}

// startService loads settings and builds a service, logging to stderr for
// one-shot commands and to stdout for the server.
func startService(ctx context.Context, options *rootOptions, console io.Writer, serviceOpts serviceOptions) (*service, error) {
	cfg, err := loadSettings(options)
	if err != nil {
		return nil, err
	}
	if console == nil {
		console = os.Stderr
	}
	logger, logFile, err := newLogger(cfg, console)
	if err != nil {
		return nil, err
	}
	svc, err := newService(ctx, cfg, logger, logFile, serviceOpts)
	if err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, err
	}
	return svc, nil
}
