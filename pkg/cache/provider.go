// pkg/cache/provider.go

package cache

import (
    "os"
    "path/filepath"
    "slices"
    "sync"
    "sync/atomic"

    "AveWorld/pkg/chunk"
    "AveWorld/pkg/metrics"
    "AveWorld/pkg/store"
    "AveWorld/pkg/task"
    "AveWorld/pkg/utils"

    "github.com/go-git/go-billy/v5"
    "github.com/go-git/go-billy/v5/osfs"
    "github.com/pkg/errors"
)

var logger = utils.GetLogger("aveworld")

// WorldProvider is the world a ChunkProvider serves.
type WorldProvider interface {
    // SavePath is the directory that receives the store snapshot.
    SavePath() string
    // Title names the snapshot file inside SavePath.
    Title() string
    GenerateChunk(pos chunk.Coord) chunk.Chunk
}

// Config of a ChunkProvider. Nil fields get defaults.
type Config struct {
    SaveChunks bool // write hot chunks to the store on Dispose
    CacheSize  int  // hot chunks kept before eviction starts
    Store      store.Store
    FS         billy.Filesystem
    Executor   task.Executor
    Metrics    metrics.Interface
}

// ChunkProvider keeps recently used chunks in memory and demotes the rest
// to a persistent store.
//
// Reads of present chunks never block. A single creation lock serializes
// misses, so a position is generated or promoted at most once, and the
// removal step of an eviction. Store writes happen outside the lock.
type ChunkProvider struct {
    parent WorldProvider
    conf   Config

    far   store.Store
    fs    billy.Filesystem
    exec  task.Executor
    stats metrics.Interface

    lock     sync.Mutex // creation lock
    pass     sync.Mutex // held by a running eviction pass and by dispose
    owned    *task.Pool // default executor, closed after Dispose
    near     sync.Map   // chunk.Coord -> chunk.Chunk
    count    atomic.Int64
    flushing atomic.Bool // an eviction pass is outstanding
}

// NewChunkProvider builds a cache for parent and restores the snapshot at
// <SavePath>/<Title> into the store when one exists.
func NewChunkProvider(parent WorldProvider, conf *Config) *ChunkProvider {
    p := &ChunkProvider{parent: parent}
    if conf != nil {
        p.conf = *conf
    }
    if p.conf.CacheSize < 0 {
        p.conf.CacheSize = 0
    }
    p.far = p.conf.Store
    if p.far == nil {
        p.far, _ = store.NewMemStore(nil)
    }
    p.fs = p.conf.FS
    if p.fs == nil {
        p.fs = osfs.New("/")
    }
    p.exec = p.conf.Executor
    if p.exec == nil {
        p.owned = task.NewPool(2, 64)
        p.exec = p.owned
    }
    p.stats = p.conf.Metrics
    if p.stats == nil {
        p.stats = metrics.Noop{}
    }
    p.load()
    return p
}

func (p *ChunkProvider) snapshotPath() string {
    return filepath.Join(p.parent.SavePath(), p.parent.Title())
}

// fail logs an error the caller cannot return and reports it.
func (p *ChunkProvider) fail(op string, err error) {
    logger.Errorf("%s: %s", op, err)
    p.stats.Failure(op, err)
}

func (p *ChunkProvider) load() {
    name := p.snapshotPath()
    f, err := p.fs.Open(name)
    if errors.Is(err, os.ErrNotExist) {
        logger.Debugf("no snapshot at %s, start empty", name)
        return
    }
    if err != nil {
        p.fail("load", errors.Wrapf(err, "open %s", name))
        return
    }
    defer f.Close()
    if err = p.far.Load(f); err != nil {
        p.fail("load", errors.Wrapf(err, "restore %s", name))
        return
    }
    logger.Infof("restored %d chunks of %s from %s", p.far.ApproximateSize(), p.parent.Title(), name)
}

// lookup is the lock free fast path.
func (p *ChunkProvider) lookup(pos chunk.Coord) (chunk.Chunk, bool) {
    v, ok := p.near.Load(pos)
    if !ok {
        return nil, false
    }
    c := v.(chunk.Chunk)
    touch(c)
    return c, true
}

func touch(c chunk.Chunk) {
    if t, ok := c.(chunk.Toucher); ok {
        t.Touch()
    }
}

// GetChunk returns the chunk at pos, promoting it from the store or
// generating it when it is not in memory.
func (p *ChunkProvider) GetChunk(pos chunk.Coord) chunk.Chunk {
    if c, ok := p.lookup(pos); ok {
        p.stats.IncHit()
        return c
    }

    p.lock.Lock()
    if c, ok := p.lookup(pos); ok {
        p.lock.Unlock()
        p.stats.IncHit()
        return c
    }
    p.stats.IncMiss()
    c := p.create(pos)
    if old, loaded := p.near.Swap(pos, c); loaded {
        logger.Errorf("duplicate chunk at %s: %p replaced by %p", pos, old, c)
        p.stats.IncDuplicate()
    } else {
        p.count.Add(1)
    }
    touch(c)
    p.stats.SetNearSize(p.Len())
    p.lock.Unlock()

    p.FlushCache()
    return c
}

// create must be called with the creation lock held.
func (p *ChunkProvider) create(pos chunk.Coord) chunk.Chunk {
    c, err := p.far.Get(pos)
    if err == nil {
        p.stats.IncPromoted()
        return c
    }
    if !errors.Is(err, store.ErrNotFound) {
        p.fail("get", errors.Wrapf(err, "promote chunk %s", pos))
    }
    c = p.parent.GenerateChunk(pos)
    p.stats.IncGenerated()
    return c
}

// IsChunkAvailable reports whether pos is in memory. It never loads.
func (p *ChunkProvider) IsChunkAvailable(pos chunk.Coord) bool {
    _, ok := p.near.Load(pos)
    return ok
}

// FlushCache schedules an eviction pass when more than CacheSize chunks
// are in memory and no pass is outstanding. It reports whether a pass
// was scheduled.
func (p *ChunkProvider) FlushCache() bool {
    if p.count.Load() <= int64(p.conf.CacheSize) {
        return false
    }
    if !p.flushing.CompareAndSwap(false, true) {
        return false
    }
    p.exec.Submit("flush chunk cache", func() {
        defer p.flushing.Store(false)
        p.evict()
    })
    return true
}

// ranking is a chunk with its use stamp read once, so that touches
// during the sort cannot reorder it.
type ranking struct {
    c       chunk.Chunk
    stamp   uint64
    stamped bool
}

type stamper interface {
    Stamp() uint64
}

func rank(c chunk.Chunk) ranking {
    if s, ok := c.(stamper); ok {
        return ranking{c, s.Stamp(), true}
    }
    return ranking{c: c}
}

func compareRanking(a, b ranking) int {
    if !a.stamped || !b.stamped {
        return a.c.Compare(b.c)
    }
    switch {
    case a.stamp > b.stamp:
        return -1
    case a.stamp < b.stamp:
        return 1
    }
    return chunk.CompareCoord(a.c.Pos(), b.c.Pos())
}

// evict demotes the lowest ranked chunk to the store.
func (p *ChunkProvider) evict() {
    p.pass.Lock()
    defer p.pass.Unlock()

    var hot []ranking
    p.near.Range(func(_, v any) bool {
        hot = append(hot, rank(v.(chunk.Chunk)))
        return true
    })
    if len(hot) <= p.conf.CacheSize {
        return
    }
    slices.SortFunc(hot, compareRanking)
    victim := hot[len(hot)-1].c

    if err := p.far.Put(victim); err != nil {
        p.fail("put", errors.Wrapf(err, "evict chunk %s", victim.Pos()))
        return
    }

    p.lock.Lock()
    removed := p.near.CompareAndDelete(victim.Pos(), victim)
    if removed {
        p.count.Add(-1)
    }
    p.lock.Unlock()
    if !removed {
        logger.Debugf("chunk %s left memory during eviction", victim.Pos())
        return
    }
    victim.Dispose()
    p.stats.AddEvicted(1)
    p.stats.SetNearSize(p.Len())
    logger.Debugf("evicted chunk %s, %d left in memory", victim.Pos(), p.Len())
}

// Dispose releases every chunk in memory, saving them first when
// SaveChunks is set, then writes the store snapshot. It runs on the
// executor; the channel receives the outcome once.
func (p *ChunkProvider) Dispose() <-chan error {
    done := make(chan error, 1)
    p.exec.Submit("dispose chunk cache", func() {
        done <- p.dispose()
        if p.owned != nil {
            // Close waits for the workers, this one included
            go p.owned.Close()
        }
    })
    return done
}

func (p *ChunkProvider) dispose() error {
    // a running pass finishes its Put before the chunks are released
    p.pass.Lock()
    defer p.pass.Unlock()

    var unsaved int
    p.lock.Lock()
    p.near.Range(func(k, v any) bool {
        c := v.(chunk.Chunk)
        if p.conf.SaveChunks {
            if err := p.far.Put(c); err != nil {
                p.fail("put", errors.Wrapf(err, "save chunk %s", c.Pos()))
                unsaved++
            }
        }
        c.Dispose()
        p.near.Delete(k)
        return true
    })
    p.count.Store(0)
    p.lock.Unlock()
    p.stats.SetNearSize(0)

    dir := p.parent.SavePath()
    if err := p.fs.MkdirAll(dir, 0755); err != nil {
        err = errors.Wrapf(err, "create save directory %s", dir)
        p.fail("mkdir", err)
        return err
    }
    if err := p.writeSnapshot(dir); err != nil {
        p.fail("save", err)
        return err
    }
    if unsaved > 0 {
        return errors.Errorf("%d chunks could not be saved", unsaved)
    }
    return nil
}

// writeSnapshot replaces the snapshot through a temporary file so that a
// crash leaves either the old or the new one.
func (p *ChunkProvider) writeSnapshot(dir string) error {
    name := p.snapshotPath()
    tmp, err := p.fs.TempFile(dir, "."+p.parent.Title()+".")
    if err != nil {
        return errors.Wrapf(err, "create temporary snapshot in %s", dir)
    }
    abort := func(err error) error {
        _ = tmp.Close()
        _ = p.fs.Remove(tmp.Name())
        return err
    }
    if err = p.far.Save(tmp); err != nil {
        return abort(errors.Wrapf(err, "write snapshot of %s", p.far.Name()))
    }
    if s, ok := tmp.(interface{ Sync() error }); ok {
        if err = s.Sync(); err != nil {
            return abort(errors.Wrapf(err, "sync %s", tmp.Name()))
        }
    }
    if err = tmp.Close(); err != nil {
        _ = p.fs.Remove(tmp.Name())
        return errors.Wrapf(err, "close %s", tmp.Name())
    }
    if err = p.fs.Rename(tmp.Name(), name); err != nil {
        _ = p.fs.Remove(tmp.Name())
        return errors.Wrapf(err, "rename snapshot to %s", name)
    }
    logger.Infof("saved %d chunks to %s", p.far.ApproximateSize(), name)
    return nil
}

// Size is the number of chunks in the store. Chunks only in memory are
// not counted.
func (p *ChunkProvider) Size() int64 {
    return p.far.ApproximateSize()
}

// Len is the number of chunks in memory.
func (p *ChunkProvider) Len() int {
    return int(p.count.Load())
}

// Store returns the persistent tier.
func (p *ChunkProvider) Store() store.Store {
    return p.far
}
