// pkg/utils/cond.go

package utils

import (
    "sync"
    "time"
)

// Cond is similar to sync.Cond, but waiters can give up after a timeout.
// Signal and Broadcast must be called with L held.
type Cond struct {
    L      sync.Locker
    signal chan struct{}
}

// Signal wakes up the waiters. Waiters always re-check their condition,
// so waking all of them is fine.
func (c *Cond) Signal() {
    c.Broadcast()
}

// Broadcast wakes up all the waiters.
func (c *Cond) Broadcast() {
    close(c.signal)
    c.signal = make(chan struct{})
}

// Wait until Signal() or Broadcast() is called.
func (c *Cond) Wait() {
    ch := c.signal
    c.L.Unlock()
    defer c.L.Lock()
    <-ch
}

var timerPool = sync.Pool{
    New: func() interface{} {
        return time.NewTimer(time.Second)
    },
}

// WaitWithTimeout wait for a signal or a period of timeout eclipsed.
// returns true in case of timeout else false
func (c *Cond) WaitWithTimeout(d time.Duration) bool {
    ch := c.signal
    c.L.Unlock()
    t := timerPool.Get().(*time.Timer)
    t.Reset(d)
    defer func() {
        if !t.Stop() {
            select {
            case <-t.C:
            default:
            }
        }
        timerPool.Put(t)
    }()
    defer c.L.Lock()
    select {
    case <-ch:
        return false
    case <-t.C:
        return true
    }
}

// NewCond creates a Cond.
func NewCond(lock sync.Locker) *Cond {
    return &Cond{lock, make(chan struct{})}
}
