package folder

import (
	"time"

	"foldercache/internal/event"
	"foldercache/internal/executor"
	"foldercache/internal/logging"
	"foldercache/internal/metrics"
)

const defaultReloadDelay = 100 * time.Millisecond

type Options struct {
	Lister    Lister
	Inspector Inspector
	DirMaker  DirMaker
	Monitor   Monitor
	Capacity  CapacityQuerier
	Mounts    MountSource

	// Executor is the consumer context. A dedicated loop is started when nil.
	Executor executor.Executor
	Logger   *logging.Logger
	Metrics  *metrics.Registry
	// Bus receives every folder event after observers have seen it.
	Bus      *event.Bus[Event]
	MountBus *event.Bus[event.MountEvent]

	// ReloadDelay debounces reloads requested by mount changes.
	ReloadDelay time.Duration
	// DeferContentTest lists in fast mode and fetches detailed metadata in
	// a follow-up flush.
	DeferContentTest bool
}

var _ event.Event = Event{}
