// Package event fans typed events out to channel subscribers.
package event

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"foldercache/internal/buffer"
	"foldercache/internal/logging"
	"foldercache/internal/metrics"
)

const (
	defaultSubscriberBufferSize = 128
	defaultDropWarningThreshold = 0.01
	defaultDropWarningInterval  = 30 * time.Second
)

type BusOptions struct {
	Name string
	// SubscriberBufferSize is the channel capacity per subscriber. Events
	// for a full subscriber are dropped and counted.
	SubscriberBufferSize int
	// HistorySize keeps the most recent events for replay to new subscribers.
	HistorySize          int
	DropWarningThreshold float64
	DropWarningInterval  time.Duration
	Registry             *metrics.Registry
	Logger               *logging.Logger
}

// Bus delivers published events to every subscriber whose filter accepts
// them. Publish never blocks.
type Bus[T any] struct {
	options  BusOptions
	registry *metrics.Registry

	mu          sync.Mutex
	subscribers map[uint64]subscription[T]
	nextID      uint64
	closed      bool
	history     *buffer.Ring[T]

	published   atomic.Int64
	dropped     atomic.Int64
	lastWarning atomic.Int64
}

type subscription[T any] struct {
	ch     chan T
	filter func(T) bool
}

// NewBus creates a bus that closes itself when ctx is done.
func NewBus[T any](ctx context.Context, opts BusOptions) *Bus[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.SubscriberBufferSize <= 0 {
		opts.SubscriberBufferSize = defaultSubscriberBufferSize
	}
	if opts.DropWarningThreshold <= 0 {
		opts.DropWarningThreshold = defaultDropWarningThreshold
	}
	if opts.DropWarningInterval <= 0 {
		opts.DropWarningInterval = defaultDropWarningInterval
	}
	if opts.Name == "" {
		opts.Name = "event_bus"
	}
	bus := &Bus[T]{
		options:     opts,
		registry:    opts.Registry,
		subscribers: make(map[uint64]subscription[T]),
	}
	if opts.HistorySize > 0 {
		bus.history = buffer.NewRing[T](opts.HistorySize)
	}
	if bus.registry == nil {
		bus.registry = metrics.Default
	}
	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			bus.Close()
		}()
	}
	return bus
}

func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	return b.subscribe(nil, false)
}

// SubscribeFiltered subscribes to the events accepted by filter. A nil
// filter accepts everything.
func (b *Bus[T]) SubscribeFiltered(filter func(T) bool) (<-chan T, func()) {
	return b.subscribe(filter, false)
}

// SubscribeWithReplay is SubscribeFiltered preceded by the retained history
// that passes filter. No event falls between the replay and the live stream.
func (b *Bus[T]) SubscribeWithReplay(filter func(T) bool) (<-chan T, func()) {
	return b.subscribe(filter, true)
}

func (b *Bus[T]) SubscribeType(eventType string) (<-chan T, func()) {
	return b.SubscribeTypes(eventType)
}

func (b *Bus[T]) SubscribeTypes(eventTypes ...string) (<-chan T, func()) {
	typeSet := make(map[string]struct{}, len(eventTypes))
	for _, eventType := range eventTypes {
		if eventType != "" {
			typeSet[eventType] = struct{}{}
		}
	}
	if len(typeSet) == 0 {
		return closedChannel[T]()
	}
	return b.subscribe(func(event T) bool {
		_, matched := typeSet[eventTypeOf(event)]
		return matched
	}, false)
}

func (b *Bus[T]) subscribe(filter func(T) bool, replay bool) (<-chan T, func()) {
	if b == nil {
		return closedChannel[T]()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return closedChannel[T]()
	}
	var backlog []T
	if replay && b.history != nil {
		for _, event := range b.history.List() {
			if b.filterAllows(filter, event) {
				backlog = append(backlog, event)
			}
		}
	}
	size := b.options.SubscriberBufferSize
	if len(backlog) > size {
		size = len(backlog)
	}
	ch := make(chan T, size)
	for _, event := range backlog {
		ch <- event
	}
	b.nextID++
	id := b.nextID
	b.subscribers[id] = subscription[T]{ch: ch, filter: filter}
	filtered, unfiltered := b.countSubscribersLocked()
	b.mu.Unlock()

	b.registry.SetEventSubscriberCounts(b.options.Name, filtered, unfiltered)

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.removeSubscriber(id) })
	}
}

func (b *Bus[T]) Publish(event T) {
	if b == nil {
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if b.history != nil {
		b.history.Add(event)
	}
	subscribers := make([]subscription[T], 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subscribers = append(subscribers, sub)
	}
	// Sends happen under the lock so a concurrent cancel cannot close a
	// channel mid-send. Every send is non-blocking.
	eventType := typeLabel(event)
	b.published.Add(1)
	b.registry.IncEventPublished(b.options.Name, eventType)
	dropped := 0
	for _, sub := range subscribers {
		if !b.filterAllows(sub.filter, event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()

	for i := 0; i < dropped; i++ {
		b.dropped.Add(1)
		b.registry.IncEventDropped(b.options.Name, eventType)
	}
	if dropped > 0 {
		b.maybeWarnDropRate()
	}
}

func (b *Bus[T]) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subscribers := b.subscribers
	b.subscribers = make(map[uint64]subscription[T])
	for _, sub := range subscribers {
		close(sub.ch)
	}
	b.mu.Unlock()

	b.registry.SetEventSubscriberCounts(b.options.Name, 0, 0)
}

// History returns the retained events, oldest first.
func (b *Bus[T]) History() []T {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.history == nil {
		return nil
	}
	return b.history.List()
}

func (b *Bus[T]) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

func (b *Bus[T]) removeSubscriber(id uint64) {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.subscribers, id)
	close(sub.ch)
	filtered, unfiltered := b.countSubscribersLocked()
	b.mu.Unlock()

	b.registry.SetEventSubscriberCounts(b.options.Name, filtered, unfiltered)
}

// filterAllows treats a panicking filter as a rejection.
func (b *Bus[T]) filterAllows(filter func(T) bool, event T) (allowed bool) {
	if filter == nil {
		return true
	}
	defer func() {
		if recover() != nil {
			b.logWarn("subscriber filter panicked", nil)
			allowed = false
		}
	}()
	return filter(event)
}

func (b *Bus[T]) countSubscribersLocked() (filtered int, unfiltered int) {
	for _, sub := range b.subscribers {
		if sub.filter == nil {
			unfiltered++
		} else {
			filtered++
		}
	}
	return filtered, unfiltered
}

func (b *Bus[T]) maybeWarnDropRate() {
	published := b.published.Load()
	dropped := b.dropped.Load()
	if published == 0 || dropped == 0 {
		return
	}
	rate := float64(dropped) / float64(published)
	if rate < b.options.DropWarningThreshold {
		return
	}
	now := time.Now()
	last := b.lastWarning.Load()
	if last > 0 && now.Sub(time.Unix(0, last)) < b.options.DropWarningInterval {
		return
	}
	if !b.lastWarning.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	b.logWarn("event drop rate exceeded threshold", map[string]string{
		"rate":      strconv.FormatFloat(rate*100, 'f', 2, 64) + "%",
		"dropped":   strconv.FormatInt(dropped, 10),
		"published": strconv.FormatInt(published, 10),
	})
}

func (b *Bus[T]) logWarn(message string, fields map[string]string) {
	if b.options.Logger == nil {
		return
	}
	combined := map[string]string{"bus": b.options.Name}
	for key, value := range fields {
		combined[key] = value
	}
	b.options.Logger.Warn(message, combined)
}

func typeLabel[T any](event T) string {
	if value := eventTypeOf(event); value != "" {
		return value
	}
	return "unknown"
}

func eventTypeOf[T any](event T) string {
	typed, ok := any(event).(interface{ Type() string })
	if !ok {
		return ""
	}
	return typed.Type()
}

func closedChannel[T any]() (<-chan T, func()) {
	ch := make(chan T)
	close(ch)
	return ch, func() {}
}
