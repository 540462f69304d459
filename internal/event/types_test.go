package event

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewMountEvent(t *testing.T) {
	before := time.Now().UTC()
	event := NewMountEvent(MountAdded, "/media/usb", "/dev/sdb1", "vfat")

	if event.Type() != MountAdded {
		t.Fatalf("expected type %q, got %q", MountAdded, event.Type())
	}
	if event.Root != "/media/usb" || event.Source != "/dev/sdb1" || event.FSType != "vfat" {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.Timestamp().Before(before) {
		t.Fatalf("expected timestamp after %v, got %v", before, event.Timestamp())
	}
}

func TestMountEventJSON(t *testing.T) {
	payload, err := json.Marshal(NewMountEvent(MountRemoved, "/mnt/nfs", "", "nfs4"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(payload)
	for _, want := range []string{`"type":"mount_removed"`, `"root":"/mnt/nfs"`, `"fs_type":"nfs4"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in %s", want, body)
		}
	}
	if strings.Contains(body, `"source"`) {
		t.Fatalf("expected empty source to be omitted, got %s", body)
	}
}
