// Package schedule provides cancellable repeating tasks.
//
// Production code uses Ticker, tests drive time explicitly with Manual.
package schedule

import (
	"sync"
	"time"
)

// Task is a scheduled repeating callback. Stop is idempotent and may be
// called from inside the callback.
type Task interface {
	Stop()
}

// Scheduler starts repeating tasks.
type Scheduler interface {
	// Every runs fn once per interval until the returned task is stopped.
	// The first run happens one interval after the call.
	Every(interval time.Duration, fn func()) Task
}

// Ticker runs each task on its own goroutine driven by a time.Ticker.
// Runs of the same task never overlap: a slow run delays the next one.
type Ticker struct{}

// NewTicker returns a wall-clock scheduler.
func NewTicker() *Ticker {
	return &Ticker{}
}

func (Ticker) Every(interval time.Duration, fn func()) Task {
	t := &tickerTask{
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}
	go t.run(fn)
	return t
}

type tickerTask struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *tickerTask) run(fn func()) {
	defer t.ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C:
			// Stop may race with a pending tick.
			select {
			case <-t.done:
				return
			default:
			}
			fn()
		}
	}
}

func (t *tickerTask) Stop() {
	t.once.Do(func() { close(t.done) })
}

// Manual is a Scheduler whose time only moves when the test says so.
type Manual struct {
	mu    sync.Mutex
	tasks []*manualTask
}

// NewManual returns an empty manual scheduler.
func NewManual() *Manual {
	return &Manual{}
}

type manualTask struct {
	interval time.Duration
	elapsed  time.Duration
	fn       func()

	mu      sync.Mutex
	stopped bool
}

func (t *manualTask) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *manualTask) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (m *Manual) Every(interval time.Duration, fn func()) Task {
	t := &manualTask{interval: interval, fn: fn}
	m.mu.Lock()
	m.tasks = append(m.tasks, t)
	m.mu.Unlock()
	return t
}

// Tick runs every live task once, regardless of its interval, and returns
// how many callbacks ran.
func (m *Manual) Tick() int {
	ran := 0
	for _, t := range m.live() {
		if t.isStopped() {
			continue
		}
		t.fn()
		ran++
	}
	m.prune()
	return ran
}

// Advance moves the clock forward by d and runs each task as many times as
// its interval fits into the accumulated time.
func (m *Manual) Advance(d time.Duration) int {
	ran := 0
	for _, t := range m.live() {
		t.elapsed += d
		for t.interval > 0 && t.elapsed >= t.interval {
			if t.isStopped() {
				break
			}
			t.elapsed -= t.interval
			t.fn()
			ran++
		}
	}
	m.prune()
	return ran
}

// Active reports the number of tasks that have not been stopped.
func (m *Manual) Active() int {
	n := 0
	for _, t := range m.live() {
		if !t.isStopped() {
			n++
		}
	}
	return n
}

func (m *Manual) live() []*manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*manualTask, len(m.tasks))
	copy(out, m.tasks)
	return out
}

func (m *Manual) prune() {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.tasks[:0]
	for _, t := range m.tasks {
		if !t.isStopped() {
			kept = append(kept, t)
		}
	}
	m.tasks = kept
}
