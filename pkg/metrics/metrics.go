// pkg/metrics/metrics.go

package metrics

import (
    "sync"
    "sync/atomic"
    "time"
)

// Interface receives everything the chunk cache counts, including the
// failures it swallows instead of returning to callers.
type Interface interface {
    IncHit()
    IncMiss()
    IncPromoted()
    IncGenerated()
    IncDuplicate()
    AddEvicted(n int)
    SetNearSize(n int)
    Failure(op string, err error)
}

// Noop discards everything.
type Noop struct{}

func (Noop) IncHit()               {}
func (Noop) IncMiss()              {}
func (Noop) IncPromoted()          {}
func (Noop) IncGenerated()         {}
func (Noop) IncDuplicate()         {}
func (Noop) AddEvicted(int)        {}
func (Noop) SetNearSize(int)       {}
func (Noop) Failure(string, error) {}

// FailureEvent is one swallowed error.
type FailureEvent struct {
    Op   string
    Err  error
    Time time.Time
}

// keep the most recent failures only
const maxFailures = 64

// Simple counts in memory.
type Simple struct {
    Hit       atomic.Uint64
    Miss      atomic.Uint64
    Promoted  atomic.Uint64
    Generated atomic.Uint64
    Duplicate atomic.Uint64
    Evicted   atomic.Uint64
    NearSize  atomic.Int64

    mu       sync.Mutex
    failures []FailureEvent
}

func NewSimple() *Simple { return &Simple{} }

func (m *Simple) IncHit()       { m.Hit.Add(1) }
func (m *Simple) IncMiss()      { m.Miss.Add(1) }
func (m *Simple) IncPromoted()  { m.Promoted.Add(1) }
func (m *Simple) IncGenerated() { m.Generated.Add(1) }
func (m *Simple) IncDuplicate() { m.Duplicate.Add(1) }

func (m *Simple) AddEvicted(n int) {
    if n > 0 {
        m.Evicted.Add(uint64(n))
    }
}

func (m *Simple) SetNearSize(n int) {
    if n >= 0 {
        m.NearSize.Store(int64(n))
    }
}

func (m *Simple) Failure(op string, err error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    if len(m.failures) == maxFailures {
        m.failures = append(m.failures[:0], m.failures[1:]...)
    }
    m.failures = append(m.failures, FailureEvent{op, err, time.Now()})
}

// Failures returns the recorded failures, oldest first.
func (m *Simple) Failures() []FailureEvent {
    m.mu.Lock()
    defer m.mu.Unlock()
    return append([]FailureEvent(nil), m.failures...)
}

// FailuresOf returns the recorded failures of one operation.
func (m *Simple) FailuresOf(op string) []FailureEvent {
    var out []FailureEvent
    for _, f := range m.Failures() {
        if f.Op == op {
            out = append(out, f)
        }
    }
    return out
}

type multi []Interface

// Tee fans every event out to all of ms.
func Tee(ms ...Interface) Interface { return multi(ms) }

func (ms multi) IncHit() {
    for _, m := range ms {
        m.IncHit()
    }
}
func (ms multi) IncMiss() {
    for _, m := range ms {
        m.IncMiss()
    }
}
func (ms multi) IncPromoted() {
    for _, m := range ms {
        m.IncPromoted()
    }
}
func (ms multi) IncGenerated() {
    for _, m := range ms {
        m.IncGenerated()
    }
}
func (ms multi) IncDuplicate() {
    for _, m := range ms {
        m.IncDuplicate()
    }
}
func (ms multi) AddEvicted(n int) {
    for _, m := range ms {
        m.AddEvicted(n)
    }
}
func (ms multi) SetNearSize(n int) {
    for _, m := range ms {
        m.SetNearSize(n)
    }
}
func (ms multi) Failure(op string, err error) {
    for _, m := range ms {
        m.Failure(op, err)
    }
}
