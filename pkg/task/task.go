// pkg/task/task.go

package task

import (
    "runtime/debug"
    "sync"
    "time"

    "AveWorld/pkg/utils"
)

var logger = utils.GetLogger("aveworld")

// Executor runs named units of work off the calling goroutine.
type Executor interface {
    Submit(name string, fn func())
}

type job struct {
    name string
    fn   func()
}

// Pool runs submitted tasks on a fixed number of workers.
type Pool struct {
    sending sync.RWMutex // held for reading while a job is sent
    mu      sync.Mutex
    idle    *utils.Cond
    pending int
    closed  bool
    todo    chan job
    wg      sync.WaitGroup
}

// NewPool starts workers goroutines; queue bounds the tasks waiting for a worker.
func NewPool(workers, queue int) *Pool {
    if workers < 1 {
        workers = 1
    }
    p := &Pool{todo: make(chan job, queue)}
    p.idle = utils.NewCond(&p.mu)
    for i := 0; i < workers; i++ {
        p.wg.Add(1)
        go p.worker()
    }
    return p
}

func (p *Pool) worker() {
    defer p.wg.Done()
    for j := range p.todo {
        p.run(j)
        p.mu.Lock()
        p.pending--
        if p.pending == 0 {
            p.idle.Broadcast()
        }
        p.mu.Unlock()
    }
}

func (p *Pool) run(j job) {
    start := utils.Clock()
    defer func() {
        if r := recover(); r != nil {
            logger.Errorf("task %q panic: %v\n%s", j.name, r, debug.Stack())
        }
    }()
    j.fn()
    logger.Debugf("task %q done in %s", j.name, utils.Clock()-start)
}

// Submit queues fn; it blocks while the queue is full. Tasks submitted
// after Close run on the caller.
func (p *Pool) Submit(name string, fn func()) {
    p.sending.RLock()
    defer p.sending.RUnlock()
    p.mu.Lock()
    if p.closed {
        p.mu.Unlock()
        logger.Warnf("task %q submitted to a closed pool, run inline", name)
        p.run(job{name, fn})
        return
    }
    p.pending++
    p.mu.Unlock()
    p.todo <- job{name, fn}
}

// WaitIdle waits until no task is queued or running.
// returns false in case of timeout
func (p *Pool) WaitIdle(timeout time.Duration) bool {
    deadline := time.Now().Add(timeout)
    p.mu.Lock()
    defer p.mu.Unlock()
    for p.pending > 0 {
        left := time.Until(deadline)
        if left <= 0 {
            return false
        }
        p.idle.WaitWithTimeout(left)
    }
    return true
}

// Close waits for the queued tasks and stops the workers.
func (p *Pool) Close() {
    p.mu.Lock()
    if p.closed {
        p.mu.Unlock()
        return
    }
    p.closed = true
    p.mu.Unlock()
    p.sending.Lock()
    close(p.todo)
    p.sending.Unlock()
    p.wg.Wait()
}

// Closed reports whether Close has been called.
func (p *Pool) Closed() bool {
    p.mu.Lock()
    defer p.mu.Unlock()
    return p.closed
}

// Inline runs every task on the submitting goroutine.
type Inline struct{}

func (Inline) Submit(name string, fn func()) {
    logger.Debugf("run task %q inline", name)
    fn()
}
