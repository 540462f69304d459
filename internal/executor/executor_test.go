package executor

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"foldercache/internal/logging"
)

func TestLoopRunsTasksInOrder(t *testing.T) {
	loop := NewLoop(nil)
	defer loop.Close()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		value := i
		loop.Post(func() {
			mu.Lock()
			got = append(got, value)
			mu.Unlock()
			if value == 49 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tasks")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, value := range got {
		if value != i {
			t.Fatalf("task %d ran out of order: %v", i, got)
		}
	}
}

func TestLoopRecoversPanics(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLoggerWithOutput(logging.NewLogBuffer(10), logging.LevelDebug, &buf)
	loop := NewLoop(logger)

	ran := make(chan struct{})
	loop.Post(func() { panic("boom") })
	loop.Post(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("loop stopped after panic")
	}
	loop.Close()

	if !strings.Contains(buf.String(), "consumer task panicked") {
		t.Fatalf("expected panic to be logged, got %q", buf.String())
	}
}

func TestLoopCloseDrainsQueue(t *testing.T) {
	loop := NewLoop(nil)
	count := 0
	for i := 0; i < 10; i++ {
		loop.Post(func() { count++ })
	}
	loop.Close()
	if count != 10 {
		t.Fatalf("expected 10 tasks to run before close, got %d", count)
	}
	loop.Post(func() { count++ })
	loop.Close()
	if count != 10 {
		t.Fatalf("expected post after close to be dropped, got %d", count)
	}
}

func TestManualRunPendingIncludesNestedPosts(t *testing.T) {
	manual := NewManual()
	var order []string
	manual.Post(func() {
		order = append(order, "first")
		manual.Post(func() { order = append(order, "nested") })
	})
	manual.Post(func() { order = append(order, "second") })

	if manual.Len() != 2 {
		t.Fatalf("expected 2 queued tasks, got %d", manual.Len())
	}
	if ran := manual.RunPending(); ran != 3 {
		t.Fatalf("expected 3 tasks to run, got %d", ran)
	}
	if strings.Join(order, ",") != "first,second,nested" {
		t.Fatalf("unexpected order: %v", order)
	}
}
