package watcher

import (
	"reflect"
	"testing"
	"time"
)

type flushed struct {
	path  string
	kinds []Kind
}

func TestDebouncerFlushesBurstOnce(t *testing.T) {
	out := make(chan flushed, 4)
	d := newDebouncer(20*time.Millisecond, func(path string, kinds []Kind) {
		out <- flushed{path: path, kinds: kinds}
	})
	defer d.stop()

	if collapsed := d.add("/data/a", Changed); collapsed != 0 {
		t.Fatalf("expected nothing collapsed, got %d", collapsed)
	}
	if collapsed := d.add("/data/a", Changed, Changed); collapsed != 2 {
		t.Fatalf("expected 2 collapsed, got %d", collapsed)
	}

	select {
	case got := <-out:
		if got.path != "/data/a" || !reflect.DeepEqual(got.kinds, []Kind{Changed}) {
			t.Fatalf("unexpected flush %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for flush")
	}
	select {
	case got := <-out:
		t.Fatalf("unexpected second flush %+v", got)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestDebouncerKeepsDistinctKindsInOrder(t *testing.T) {
	d := newDebouncer(time.Hour, func(string, []Kind) {})
	defer d.stop()

	d.add("/data/x", Created)
	d.add("/data/x", Changed, Changed)
	d.add("/data/x", Deleted)
	d.add("/data/y", Created)

	if got := d.take("/data/x"); !reflect.DeepEqual(got, []Kind{Created, Changed, Deleted}) {
		t.Fatalf("unexpected burst %v", got)
	}
	if got := d.take("/data/x"); got != nil {
		t.Fatalf("expected burst consumed, got %v", got)
	}
	if got := d.take("/data/y"); !reflect.DeepEqual(got, []Kind{Created}) {
		t.Fatalf("expected independent burst per path, got %v", got)
	}
}

func TestDebouncerStopDiscardsPending(t *testing.T) {
	out := make(chan flushed, 1)
	d := newDebouncer(10*time.Millisecond, func(path string, kinds []Kind) {
		out <- flushed{path: path, kinds: kinds}
	})
	d.add("/data/a", Created)
	d.stop()

	if d.add("/data/a", Changed) != 0 {
		t.Fatal("expected add after stop to be ignored")
	}
	select {
	case got := <-out:
		t.Fatalf("unexpected flush after stop %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}
