// Package executor provides the serial consumer context on which folder
// events are delivered.
package executor

import (
	"fmt"
	"sync"

	"foldercache/internal/logging"
)

// Executor runs posted tasks one at a time in submission order.
type Executor interface {
	Post(task func())
}

// Loop runs tasks on a dedicated goroutine.
type Loop struct {
	logger *logging.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	closed  bool
	done    chan struct{}
	started sync.Once
}

func NewLoop(logger *logging.Logger) *Loop {
	loop := &Loop{
		logger: logger,
		done:   make(chan struct{}),
	}
	loop.cond = sync.NewCond(&loop.mu)
	loop.started.Do(func() {
		go loop.run()
	})
	return loop
}

// Post queues task. Tasks posted after Close are dropped.
func (l *Loop) Post(task func()) {
	if l == nil || task == nil {
		return
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()
	l.cond.Signal()
}

// Close stops the loop after the queued tasks have run.
func (l *Loop) Close() {
	if l == nil {
		return
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	l.mu.Unlock()
	l.cond.Broadcast()
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 && l.closed {
			l.mu.Unlock()
			return
		}
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()
		l.runTask(task)
	}
}

func (l *Loop) runTask(task func()) {
	defer func() {
		if recovered := recover(); recovered != nil && l.logger != nil {
			l.logger.Error("consumer task panicked", map[string]string{
				"panic": fmt.Sprint(recovered),
			})
		}
	}()
	task()
}

// Manual queues tasks until RunPending is called. It is meant for tests
// that need to control when deliveries happen.
type Manual struct {
	mu    sync.Mutex
	queue []func()
}

func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Post(task func()) {
	if task == nil {
		return
	}
	m.mu.Lock()
	m.queue = append(m.queue, task)
	m.mu.Unlock()
}

// RunPending runs queued tasks, including ones posted while draining,
// and returns how many ran.
func (m *Manual) RunPending() int {
	ran := 0
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return ran
		}
		task := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		task()
		ran++
	}
}

func (m *Manual) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
