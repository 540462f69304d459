package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Registry struct {
	foldersActive    atomic.Int64
	foldersCreated   atomic.Int64
	flushes          atomic.Int64
	reloads          atomic.Int64
	capacityQueries  atomic.Int64
	capacityFailures atomic.Int64
	watchesActive    atomic.Int64
	watchDelivered   atomic.Int64
	watchOverflows   atomic.Int64
	watchRestarts    atomic.Int64
	notifications    sync.Map
	listings         sync.Map
	eventsPublished  sync.Map
	eventsDropped    sync.Map
	eventSubscribers sync.Map
}

type listingStats struct {
	count         atomic.Int64
	failures      atomic.Int64
	cancelled     atomic.Int64
	durationNanos atomic.Int64
}

type busKey struct {
	bus       string
	eventType string
}

type subscriberCounts struct {
	filtered   atomic.Int64
	unfiltered atomic.Int64
}

var Default = &Registry{}

func (r *Registry) IncFolderCreated() {
	if r == nil {
		return
	}
	r.foldersCreated.Add(1)
	r.foldersActive.Add(1)
}

func (r *Registry) DecFolderActive() {
	if r == nil {
		return
	}
	r.foldersActive.Add(-1)
}

func (r *Registry) IncFlush() {
	if r == nil {
		return
	}
	r.flushes.Add(1)
}

func (r *Registry) IncReload() {
	if r == nil {
		return
	}
	r.reloads.Add(1)
}

func (r *Registry) RecordCapacityQuery(err error) {
	if r == nil {
		return
	}
	r.capacityQueries.Add(1)
	if err != nil {
		r.capacityFailures.Add(1)
	}
}

func (r *Registry) IncNotification(kind string) {
	if r == nil {
		return
	}
	counterFor(&r.notifications, labelOrUnknown(kind)).Add(1)
}

func (r *Registry) RecordListing(mode string, duration time.Duration, err error, cancelled bool) {
	if r == nil {
		return
	}
	stats := r.listingStats(labelOrUnknown(mode))
	stats.count.Add(1)
	stats.durationNanos.Add(duration.Nanoseconds())
	if cancelled {
		stats.cancelled.Add(1)
		return
	}
	if err != nil {
		stats.failures.Add(1)
	}
}

func (r *Registry) IncEventPublished(bus, eventType string) {
	if r == nil {
		return
	}
	counterFor(&r.eventsPublished, busKey{bus: bus, eventType: eventType}).Add(1)
}

func (r *Registry) IncEventDropped(bus, eventType string) {
	if r == nil {
		return
	}
	counterFor(&r.eventsDropped, busKey{bus: bus, eventType: eventType}).Add(1)
}

func (r *Registry) SetEventSubscriberCounts(bus string, filtered, unfiltered int) {
	if r == nil {
		return
	}
	value, _ := r.eventSubscribers.LoadOrStore(bus, &subscriberCounts{})
	counts := value.(*subscriberCounts)
	counts.filtered.Store(int64(filtered))
	counts.unfiltered.Store(int64(unfiltered))
}

func (r *Registry) SetWatchesActive(count int) {
	if r == nil {
		return
	}
	r.watchesActive.Store(int64(count))
}

func (r *Registry) AddWatchEventsDelivered(count int) {
	if r == nil {
		return
	}
	r.watchDelivered.Add(int64(count))
}

func (r *Registry) IncWatchOverflow() {
	if r == nil {
		return
	}
	r.watchOverflows.Add(1)
}

func (r *Registry) IncWatchRestart() {
	if r == nil {
		return
	}
	r.watchRestarts.Add(1)
}

// FoldersActive returns the number of live folder instances.
func (r *Registry) FoldersActive() int64 {
	if r == nil {
		return 0
	}
	return r.foldersActive.Load()
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	writeGauge(writer, "foldercache_folders_active", "Folder instances currently registered", r.foldersActive.Load())
	writeCounter(writer, "foldercache_folders_created_total", "Folder instances created", r.foldersCreated.Load())
	writeCounter(writer, "foldercache_flushes_total", "Coalesced change flushes delivered", r.flushes.Load())
	writeCounter(writer, "foldercache_reloads_total", "Folder reloads started", r.reloads.Load())
	writeCounter(writer, "foldercache_capacity_queries_total", "Filesystem capacity queries", r.capacityQueries.Load())
	writeCounter(writer, "foldercache_capacity_failures_total", "Failed filesystem capacity queries", r.capacityFailures.Load())
	writeGauge(writer, "foldercache_watches_active", "Paths registered with the change monitor", r.watchesActive.Load())
	writeCounter(writer, "foldercache_watch_events_delivered_total", "Change notifications delivered to folders", r.watchDelivered.Load())
	writeCounter(writer, "foldercache_watch_overflows_total", "Change monitor queue overflows", r.watchOverflows.Load())
	writeCounter(writer, "foldercache_watch_restarts_total", "Change monitor backend restarts", r.watchRestarts.Load())

	writeHelp(writer, "foldercache_notifications_total", "Folder notifications delivered by kind")
	fmt.Fprintln(writer, "# TYPE foldercache_notifications_total counter")
	for _, kind := range sortedStringKeys(&r.notifications) {
		fmt.Fprintf(writer, "foldercache_notifications_total{kind=%s} %d\n", formatLabel(kind), counterFor(&r.notifications, kind).Load())
	}

	modes := sortedStringKeys(&r.listings)
	writeHelp(writer, "foldercache_listing_duration_seconds", "Directory listing duration in seconds")
	fmt.Fprintln(writer, "# TYPE foldercache_listing_duration_seconds summary")
	writeHelp(writer, "foldercache_listing_failures_total", "Directory listings that failed")
	fmt.Fprintln(writer, "# TYPE foldercache_listing_failures_total counter")
	writeHelp(writer, "foldercache_listing_cancelled_total", "Directory listings superseded or cancelled")
	fmt.Fprintln(writer, "# TYPE foldercache_listing_cancelled_total counter")
	for _, mode := range modes {
		stats := r.listingStats(mode)
		label := formatLabel(mode)
		durationSeconds := float64(stats.durationNanos.Load()) / float64(time.Second)
		fmt.Fprintf(writer, "foldercache_listing_duration_seconds_sum{mode=%s} %.6f\n", label, durationSeconds)
		fmt.Fprintf(writer, "foldercache_listing_duration_seconds_count{mode=%s} %d\n", label, stats.count.Load())
		fmt.Fprintf(writer, "foldercache_listing_failures_total{mode=%s} %d\n", label, stats.failures.Load())
		fmt.Fprintf(writer, "foldercache_listing_cancelled_total{mode=%s} %d\n", label, stats.cancelled.Load())
	}

	writeBusCounters(writer, "foldercache_events_published_total", "Events published per bus", &r.eventsPublished)
	writeBusCounters(writer, "foldercache_events_dropped_total", "Events dropped per bus", &r.eventsDropped)

	writeHelp(writer, "foldercache_event_subscribers", "Current event bus subscribers")
	fmt.Fprintln(writer, "# TYPE foldercache_event_subscribers gauge")
	for _, bus := range sortedStringKeys(&r.eventSubscribers) {
		value, _ := r.eventSubscribers.Load(bus)
		counts := value.(*subscriberCounts)
		fmt.Fprintf(writer, "foldercache_event_subscribers{bus=%s,filtered=\"true\"} %d\n", formatLabel(bus), counts.filtered.Load())
		fmt.Fprintf(writer, "foldercache_event_subscribers{bus=%s,filtered=\"false\"} %d\n", formatLabel(bus), counts.unfiltered.Load())
	}

	return nil
}

func (r *Registry) listingStats(mode string) *listingStats {
	value, _ := r.listings.LoadOrStore(mode, &listingStats{})
	return value.(*listingStats)
}

func counterFor(store *sync.Map, key any) *atomic.Int64 {
	value, _ := store.LoadOrStore(key, &atomic.Int64{})
	return value.(*atomic.Int64)
}

func sortedStringKeys(store *sync.Map) []string {
	var keys []string
	store.Range(func(key, value interface{}) bool {
		if name, ok := key.(string); ok {
			keys = append(keys, name)
		}
		return true
	})
	sort.Strings(keys)
	return keys
}

func writeBusCounters(writer io.Writer, metric, help string, store *sync.Map) {
	var keys []busKey
	store.Range(func(key, value interface{}) bool {
		if typed, ok := key.(busKey); ok {
			keys = append(keys, typed)
		}
		return true
	})
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].bus != keys[j].bus {
			return keys[i].bus < keys[j].bus
		}
		return keys[i].eventType < keys[j].eventType
	})

	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	for _, key := range keys {
		fmt.Fprintf(writer, "%s{bus=%s,type=%s} %d\n", metric, formatLabel(key.bus), formatLabel(key.eventType), counterFor(store, key).Load())
	}
}

func labelOrUnknown(value string) string {
	if strings.TrimSpace(value) == "" {
		return "unknown"
	}
	return value
}

func writeHelp(writer io.Writer, metric, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", metric, help)
}

func writeCounter(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func writeGauge(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s gauge\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func formatLabel(value string) string {
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return fmt.Sprintf("\"%s\"", escaped)
}
