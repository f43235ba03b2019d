package engine

import (
	"sync"

	"github.com/mind-engage/mindengage-surveys/internal/survey"
)

// mirror writes response snapshots to the draft store from a single
// background goroutine. Snapshots queued while a save is running
// coalesce: only the newest is written next.
type mirror struct {
	save func(survey.ResponseSet)

	mu      sync.Mutex
	pending survey.ResponseSet
	has     bool
	running bool
	closed  bool
	wg      sync.WaitGroup
}

func newMirror(save func(survey.ResponseSet)) *mirror {
	return &mirror{save: save}
}

// enqueue schedules rs to be saved. It never blocks on the save itself.
func (m *mirror) enqueue(rs survey.ResponseSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.pending = rs
	m.has = true
	if !m.running {
		m.running = true
		m.wg.Add(1)
		go m.run()
	}
}

func (m *mirror) run() {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		if !m.has {
			m.running = false
			m.mu.Unlock()
			return
		}
		rs := m.pending
		m.pending, m.has = nil, false
		m.mu.Unlock()

		m.save(rs)
	}
}

// wait blocks until every queued snapshot has been written. Callers must
// not enqueue concurrently.
func (m *mirror) wait() { m.wg.Wait() }

// stop refuses further snapshots and waits for the worker to exit. With
// drop set, a snapshot that has not started saving is discarded.
func (m *mirror) stop(drop bool) {
	m.mu.Lock()
	m.closed = true
	if drop {
		m.pending, m.has = nil, false
	}
	m.mu.Unlock()
	m.wg.Wait()
}
