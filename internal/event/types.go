package event

import "time"

// Event is implemented by everything published on a Bus. The type is used
// for metrics labels and type subscriptions.
type Event interface {
	Type() string
	Timestamp() time.Time
}

const (
	MountAdded   = "mount_added"
	MountRemoved = "mount_removed"
)

// MountEvent reports a mount table change seen by the cache.
type MountEvent struct {
	EventType  string    `json:"type"`
	Root       string    `json:"root"`
	Source     string    `json:"source,omitempty"`
	FSType     string    `json:"fs_type,omitempty"`
	OccurredAt time.Time `json:"timestamp"`
}

var _ Event = MountEvent{}

func NewMountEvent(eventType, root, source, fsType string) MountEvent {
	return MountEvent{
		EventType:  eventType,
		Root:       root,
		Source:     source,
		FSType:     fsType,
		OccurredAt: time.Now().UTC(),
	}
}

func (e MountEvent) Type() string {
	return e.EventType
}

func (e MountEvent) Timestamp() time.Time {
	return e.OccurredAt
}
