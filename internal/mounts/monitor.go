package mounts

import (
	"context"
	"errors"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"foldercache/internal/logging"
)

const defaultPollInterval = 2 * time.Second

type Options struct {
	// Table is the mount table to read. Defaults to DefaultTable.
	Table string
	// PollInterval bounds how long a change can go unnoticed when the table
	// does not signal readiness.
	PollInterval time.Duration
	Logger       *logging.Logger
}

// Monitor rereads the mount table whenever it changes and reports the
// difference to subscribers.
type Monitor struct {
	table    string
	interval time.Duration
	logger   *logging.Logger
	file     *os.File

	mu          sync.Mutex
	current     []Mount
	subscribers map[uint64]func(Event)
	nextID      uint64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewMonitor(options Options) (*Monitor, error) {
	table := options.Table
	if table == "" {
		table = DefaultTable
	}
	interval := options.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	file, err := os.Open(table)
	if err != nil {
		return nil, err
	}
	initial, err := ParseMountInfo(file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	monitor := &Monitor{
		table:       table,
		interval:    interval,
		logger:      options.Logger,
		file:        file,
		current:     initial,
		subscribers: make(map[uint64]func(Event)),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	go monitor.run()
	return monitor, nil
}

// Subscribe registers callback for mount changes. Callbacks run on the
// monitor goroutine.
func (monitor *Monitor) Subscribe(callback func(Event)) func() {
	if monitor == nil || callback == nil {
		return func() {}
	}
	monitor.mu.Lock()
	monitor.nextID++
	id := monitor.nextID
	monitor.subscribers[id] = callback
	monitor.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			monitor.mu.Lock()
			delete(monitor.subscribers, id)
			monitor.mu.Unlock()
		})
	}
}

// Mounts returns the most recently read mount table.
func (monitor *Monitor) Mounts() []Mount {
	if monitor == nil {
		return nil
	}
	monitor.mu.Lock()
	defer monitor.mu.Unlock()
	result := make([]Mount, len(monitor.current))
	copy(result, monitor.current)
	return result
}

func (monitor *Monitor) Close() error {
	if monitor == nil {
		return nil
	}
	monitor.cancel()
	<-monitor.done
	return nil
}

func (monitor *Monitor) run() {
	defer close(monitor.done)
	defer monitor.file.Close()

	for {
		if err := waitForChange(monitor.ctx, monitor.file, monitor.interval); err != nil {
			if monitor.ctx.Err() != nil {
				return
			}
			monitor.logWarn("mount table wait failed", err)
			if !sleepContext(monitor.ctx, monitor.interval) {
				return
			}
		}
		if monitor.ctx.Err() != nil {
			return
		}
		monitor.refresh()
	}
}

func (monitor *Monitor) refresh() {
	if _, err := monitor.file.Seek(0, io.SeekStart); err != nil {
		monitor.logWarn("mount table rewind failed", err)
		return
	}
	next, err := ParseMountInfo(monitor.file)
	if err != nil {
		monitor.logWarn("mount table read failed", err)
		return
	}

	monitor.mu.Lock()
	events := Diff(monitor.current, next)
	monitor.current = next
	callbacks := make([]func(Event), 0, len(monitor.subscribers))
	for _, callback := range monitor.subscribers {
		callbacks = append(callbacks, callback)
	}
	monitor.mu.Unlock()

	if len(events) == 0 {
		return
	}
	if monitor.logger != nil {
		monitor.logger.Debug("mount table changed", map[string]string{
			"table":   monitor.table,
			"changes": strconv.Itoa(len(events)),
		})
	}
	for _, event := range events {
		for _, callback := range callbacks {
			callback(event)
		}
	}
}

func (monitor *Monitor) logWarn(message string, err error) {
	if monitor.logger == nil || err == nil || errors.Is(err, context.Canceled) {
		return
	}
	monitor.logger.Warn(message, map[string]string{
		"table": monitor.table,
		"error": err.Error(),
	})
}

func sleepContext(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
