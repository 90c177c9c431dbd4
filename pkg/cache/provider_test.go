package cache

import (
    "bytes"
    "cmp"
    "errors"
    "io"
    "os"
    "sync"
    "sync/atomic"
    "testing"
    "time"

    "AveWorld/pkg/chunk"
    "AveWorld/pkg/metrics"
    "AveWorld/pkg/store"
    "AveWorld/pkg/task"

    "github.com/go-git/go-billy/v5"
    "github.com/go-git/go-billy/v5/memfs"
    "github.com/go-git/go-billy/v5/util"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

type fakeWorld struct {
    gens  atomic.Int32
    delay time.Duration
    gen   func(pos chunk.Coord) chunk.Chunk
}

func (w *fakeWorld) SavePath() string { return "/saves" }
func (w *fakeWorld) Title() string    { return "w" }

func (w *fakeWorld) GenerateChunk(pos chunk.Coord) chunk.Chunk {
    w.gens.Add(1)
    time.Sleep(w.delay)
    if w.gen != nil {
        return w.gen(pos)
    }
    v := chunk.NewVoxels(pos)
    v.Set(0, 0, 0, byte(pos.X+1))
    return v
}

// ranked orders by a fixed rank, highest last.
type ranked struct {
    pos      chunk.Coord
    rank     int
    disposed atomic.Bool
}

func (r *ranked) Pos() chunk.Coord                { return r.pos }
func (r *ranked) Compare(o chunk.Chunk) int       { return cmp.Compare(r.rank, o.(*ranked).rank) }
func (r *ranked) MarshalBinary() ([]byte, error) { return []byte{byte(r.rank)}, nil }
func (r *ranked) Dispose()                        { r.disposed.Store(true) }
func (r *ranked) Disposed() bool                  { return r.disposed.Load() }

// fakeStore records puts and can be told to fail.
type fakeStore struct {
    sync.Mutex
    chunks map[chunk.Coord]chunk.Chunk
    puts   []chunk.Coord
    putErr error
    getErr error
}

func newFakeStore() *fakeStore {
    return &fakeStore{chunks: make(map[chunk.Coord]chunk.Chunk)}
}

func (s *fakeStore) Name() string { return "fake" }

func (s *fakeStore) Get(pos chunk.Coord) (chunk.Chunk, error) {
    s.Lock()
    defer s.Unlock()
    if s.getErr != nil {
        return nil, s.getErr
    }
    if c, ok := s.chunks[pos]; ok {
        return c, nil
    }
    return nil, store.ErrNotFound
}

func (s *fakeStore) Put(c chunk.Chunk) error {
    s.Lock()
    defer s.Unlock()
    if s.putErr != nil {
        return s.putErr
    }
    s.chunks[c.Pos()] = c
    s.puts = append(s.puts, c.Pos())
    return nil
}

func (s *fakeStore) ApproximateSize() int64 {
    s.Lock()
    defer s.Unlock()
    return int64(len(s.chunks))
}

func (s *fakeStore) Save(w io.Writer) error { return nil }
func (s *fakeStore) Load(r io.Reader) error { return nil }

// manual runs submitted tasks when told to.
type manual struct {
    sync.Mutex
    queue []func()
}

func (m *manual) Submit(_ string, fn func()) {
    m.Lock()
    m.queue = append(m.queue, fn)
    m.Unlock()
}

func (m *manual) pending() int {
    m.Lock()
    defer m.Unlock()
    return len(m.queue)
}

func (m *manual) run() {
    for {
        m.Lock()
        if len(m.queue) == 0 {
            m.Unlock()
            return
        }
        fn := m.queue[0]
        m.queue = m.queue[1:]
        m.Unlock()
        fn()
    }
}

type readOnlyFS struct {
    billy.Filesystem
}

func (readOnlyFS) MkdirAll(string, os.FileMode) error { return errors.New("read-only filesystem") }

func memStore(t *testing.T) store.Store {
    s, err := store.NewMemStore(&store.Config{Compression: "lz4"})
    require.NoError(t, err)
    return s
}

func at(x, y, z int32) chunk.Coord { return chunk.Coord{X: x, Y: y, Z: z} }

func TestGetChunkIdempotent(t *testing.T) {
    w := &fakeWorld{}
    m := metrics.NewSimple()
    p := NewChunkProvider(w, &Config{CacheSize: 8, FS: memfs.New(), Executor: task.Inline{}, Metrics: m})

    a := p.GetChunk(at(1, 2, 3))
    b := p.GetChunk(at(1, 2, 3))
    assert.Same(t, a, b)
    assert.Equal(t, int32(1), w.gens.Load())
    assert.True(t, p.IsChunkAvailable(at(1, 2, 3)))
    assert.False(t, p.IsChunkAvailable(at(3, 2, 1)))
    assert.Equal(t, 1, p.Len())
    assert.Equal(t, uint64(1), m.Miss.Load())
    assert.Equal(t, uint64(1), m.Hit.Load())
}

func TestConcurrentMissGeneratesOnce(t *testing.T) {
    w := &fakeWorld{delay: 20 * time.Millisecond}
    pool := task.NewPool(2, 16)
    defer pool.Close()
    p := NewChunkProvider(w, &Config{CacheSize: 8, FS: memfs.New(), Executor: pool})

    var wg sync.WaitGroup
    got := make([]chunk.Chunk, 16)
    for i := range got {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            got[i] = p.GetChunk(at(7, 7, 7))
        }(i)
    }
    wg.Wait()
    assert.Equal(t, int32(1), w.gens.Load())
    for _, c := range got {
        assert.Same(t, got[0], c)
    }
}

func TestEvictionReachesCapacity(t *testing.T) {
    w := &fakeWorld{}
    far := memStore(t)
    pool := task.NewPool(2, 16)
    defer pool.Close()
    m := metrics.NewSimple()
    p := NewChunkProvider(w, &Config{CacheSize: 4, Store: far, FS: memfs.New(), Executor: pool, Metrics: m})

    coords := Cube(at(0, 0, 0), 1)
    p.Warmup(coords, 4, nil)
    for i := 0; p.Len() > 4 && i < 100; i++ {
        p.FlushCache()
        require.True(t, pool.WaitIdle(5*time.Second))
    }
    assert.Equal(t, 4, p.Len())
    assert.Equal(t, uint64(len(coords)-4), m.Evicted.Load())

    for _, pos := range coords {
        if p.IsChunkAvailable(pos) {
            continue
        }
        c, err := far.Get(pos)
        require.NoError(t, err, "chunk %s was dropped", pos)
        assert.Equal(t, byte(pos.X+1), c.(*chunk.Voxels).Get(0, 0, 0))
    }
}

func TestEvictionPicksLastRanked(t *testing.T) {
    ranks := map[int32]int{5: 9, 1: 2, 3: 4}
    chunks := make(map[chunk.Coord]*ranked)
    w := &fakeWorld{gen: func(pos chunk.Coord) chunk.Chunk {
        r := &ranked{pos: pos, rank: ranks[pos.X]}
        chunks[pos] = r
        return r
    }}
    far := newFakeStore()
    exec := &manual{}
    p := NewChunkProvider(w, &Config{CacheSize: 2, Store: far, FS: memfs.New(), Executor: exec})

    p.GetChunk(at(5, 0, 0))
    p.GetChunk(at(1, 0, 0))
    assert.Equal(t, 0, exec.pending())
    p.GetChunk(at(3, 0, 0))
    require.Equal(t, 1, exec.pending())

    exec.run()
    assert.Equal(t, []chunk.Coord{at(5, 0, 0)}, far.puts)
    assert.False(t, p.IsChunkAvailable(at(5, 0, 0)))
    assert.True(t, chunks[at(5, 0, 0)].Disposed())
    assert.False(t, chunks[at(1, 0, 0)].Disposed())
    assert.Equal(t, 2, p.Len())
    assert.Equal(t, int64(1), p.Size())
}

func TestSingleOutstandingPass(t *testing.T) {
    exec := &manual{}
    p := NewChunkProvider(&fakeWorld{}, &Config{CacheSize: 1, FS: memfs.New(), Executor: exec})

    p.GetChunk(at(0, 0, 0))
    p.GetChunk(at(1, 0, 0))
    p.GetChunk(at(2, 0, 0))
    assert.Equal(t, 1, exec.pending())
    assert.False(t, p.FlushCache())

    exec.run()
    assert.Equal(t, 2, p.Len())
    assert.True(t, p.FlushCache())
    exec.run()
    assert.Equal(t, 1, p.Len())
    assert.False(t, p.FlushCache())
}

func TestEvictionKeepsChunkWhenPutFails(t *testing.T) {
    far := newFakeStore()
    far.putErr = errors.New("disk full")
    exec := &manual{}
    m := metrics.NewSimple()
    p := NewChunkProvider(&fakeWorld{}, &Config{CacheSize: 1, Store: far, FS: memfs.New(), Executor: exec, Metrics: m})

    a := p.GetChunk(at(0, 0, 0))
    p.GetChunk(at(1, 0, 0))
    exec.run()

    assert.Equal(t, 2, p.Len())
    assert.True(t, p.IsChunkAvailable(at(0, 0, 0)))
    assert.False(t, a.Disposed())
    assert.Len(t, m.FailuresOf("put"), 1)

    far.Lock()
    far.putErr = nil
    far.Unlock()
    assert.True(t, p.FlushCache())
    exec.run()
    assert.Equal(t, 1, p.Len())
    assert.True(t, a.Disposed())
}

func TestPromotion(t *testing.T) {
    w := &fakeWorld{}
    m := metrics.NewSimple()
    p := NewChunkProvider(w, &Config{CacheSize: 1, Store: memStore(t), FS: memfs.New(), Executor: task.Inline{}, Metrics: m})

    a := p.GetChunk(at(4, 0, 0))
    p.GetChunk(at(9, 0, 0))
    assert.False(t, p.IsChunkAvailable(at(4, 0, 0)))
    assert.True(t, a.Disposed())

    b := p.GetChunk(at(4, 0, 0))
    assert.NotSame(t, a, b)
    assert.Equal(t, byte(5), b.(*chunk.Voxels).Get(0, 0, 0))
    assert.Equal(t, int32(2), w.gens.Load())
    assert.Equal(t, uint64(1), m.Promoted.Load())
    assert.True(t, p.IsChunkAvailable(at(4, 0, 0)))
    assert.False(t, p.IsChunkAvailable(at(9, 0, 0)))
}

func TestGetFailureFallsBackToGeneration(t *testing.T) {
    far := newFakeStore()
    far.getErr = errors.New("connection refused")
    w := &fakeWorld{}
    m := metrics.NewSimple()
    p := NewChunkProvider(w, &Config{CacheSize: 4, Store: far, FS: memfs.New(), Executor: task.Inline{}, Metrics: m})

    assert.NotNil(t, p.GetChunk(at(0, 0, 0)))
    assert.Equal(t, int32(1), w.gens.Load())
    assert.Len(t, m.FailuresOf("get"), 1)
}

func TestTwoChunkCapacity(t *testing.T) {
    far := memStore(t)
    p := NewChunkProvider(&fakeWorld{}, &Config{CacheSize: 2, Store: far, FS: memfs.New(), Executor: task.Inline{}})

    p.GetChunk(at(0, 0, 0))
    p.GetChunk(at(0, 0, 1))
    assert.Equal(t, 2, p.Len())
    assert.Equal(t, int64(0), p.Size())

    p.GetChunk(at(0, 0, 2))
    assert.Equal(t, 2, p.Len())
    assert.Equal(t, int64(1), p.Size())
    assert.False(t, p.IsChunkAvailable(at(0, 0, 0)))
    assert.True(t, p.IsChunkAvailable(at(0, 0, 1)))
    assert.True(t, p.IsChunkAvailable(at(0, 0, 2)))

    _, err := far.Get(at(0, 0, 0))
    assert.NoError(t, err)

    c := p.GetChunk(at(0, 0, 0))
    assert.Equal(t, at(0, 0, 0), c.Pos())
    assert.True(t, p.IsChunkAvailable(at(0, 0, 0)))
    assert.Equal(t, 2, p.Len())
}

func TestDisposeSavesSnapshot(t *testing.T) {
    fs := memfs.New()
    p := NewChunkProvider(&fakeWorld{}, &Config{SaveChunks: true, CacheSize: 8, Store: memStore(t), FS: fs, Executor: task.Inline{}})
    var hot []chunk.Chunk
    for x := int32(0); x < 3; x++ {
        hot = append(hot, p.GetChunk(at(x, 0, 0)))
    }

    require.NoError(t, <-p.Dispose())
    assert.Equal(t, 0, p.Len())
    for _, c := range hot {
        assert.True(t, c.Disposed())
    }
    data, err := util.ReadFile(fs, "/saves/w")
    require.NoError(t, err)
    hdr, err := store.ReadHeader(bytes.NewReader(data))
    require.NoError(t, err)
    assert.Equal(t, int64(3), hdr.Entries)

    // no temporary file is left behind
    infos, err := fs.ReadDir("/saves")
    require.NoError(t, err)
    assert.Len(t, infos, 1)

    w := &fakeWorld{}
    again := NewChunkProvider(w, &Config{CacheSize: 8, Store: memStore(t), FS: fs, Executor: task.Inline{}})
    assert.Equal(t, int64(3), again.Size())
    c := again.GetChunk(at(2, 0, 0))
    assert.Equal(t, byte(3), c.(*chunk.Voxels).Get(0, 0, 0))
    assert.Equal(t, int32(0), w.gens.Load())
}

func TestDisposeWithoutSaveChunks(t *testing.T) {
    fs := memfs.New()
    far := memStore(t)
    pool := task.NewPool(1, 4)
    defer pool.Close()
    p := NewChunkProvider(&fakeWorld{}, &Config{CacheSize: 8, Store: far, FS: fs, Executor: pool})
    a := p.GetChunk(at(0, 0, 0))
    p.GetChunk(at(1, 0, 0))

    select {
    case err := <-p.Dispose():
        require.NoError(t, err)
    case <-time.After(5 * time.Second):
        t.Fatal("dispose did not finish")
    }
    assert.True(t, a.Disposed())
    assert.Equal(t, int64(0), far.ApproximateSize())

    again := NewChunkProvider(&fakeWorld{}, &Config{Store: memStore(t), FS: fs, Executor: task.Inline{}})
    assert.Equal(t, int64(0), again.Size())
}

func TestDisposeMkdirFailure(t *testing.T) {
    fs := readOnlyFS{memfs.New()}
    m := metrics.NewSimple()
    p := NewChunkProvider(&fakeWorld{}, &Config{SaveChunks: true, FS: fs, Executor: task.Inline{}, Metrics: m})
    p.GetChunk(at(0, 0, 0))

    assert.Error(t, <-p.Dispose())
    assert.Len(t, m.FailuresOf("mkdir"), 1)
    assert.Empty(t, m.FailuresOf("save"))
    _, err := fs.Stat("/saves/w")
    assert.Error(t, err)
}

func TestCorruptSnapshotStartsEmpty(t *testing.T) {
    fs := memfs.New()
    require.NoError(t, util.WriteFile(fs, "/saves/w", []byte("not a snapshot at all"), 0644))
    m := metrics.NewSimple()
    p := NewChunkProvider(&fakeWorld{}, &Config{FS: fs, Executor: task.Inline{}, Metrics: m})

    assert.Equal(t, int64(0), p.Size())
    require.Len(t, m.FailuresOf("load"), 1)
    assert.ErrorIs(t, m.FailuresOf("load")[0].Err, store.ErrCorruptSnapshot)
}

func TestWarmup(t *testing.T) {
    w := &fakeWorld{}
    p := NewChunkProvider(w, &Config{CacheSize: 100, FS: memfs.New(), Executor: task.Inline{}})
    var done atomic.Int32
    coords := Cube(at(10, 10, 10), 1)
    require.Len(t, coords, 27)

    p.Warmup(coords, 4, func() { done.Add(1) })
    assert.Equal(t, int32(27), done.Load())
    assert.Equal(t, int32(27), w.gens.Load())
    assert.Equal(t, 27, p.Len())
    assert.Nil(t, Cube(at(0, 0, 0), -1))
}

func TestEvictionOverlappingDispose(t *testing.T) {
    for i := 0; i < 50; i++ {
        far := memStore(t)
        pool := task.NewPool(2, 64)
        m := metrics.NewSimple()
        p := NewChunkProvider(&fakeWorld{}, &Config{SaveChunks: true, Store: far, FS: memfs.New(), Executor: pool, Metrics: m})
        coords := Cube(at(0, 0, 0), 1)
        var hot []chunk.Chunk
        for _, pos := range coords {
            hot = append(hot, p.GetChunk(pos))
        }
        p.FlushCache()
        err := <-p.Dispose()
        pool.Close()
        require.NoError(t, err)
        assert.Empty(t, m.FailuresOf("put"))

        for _, c := range hot {
            assert.True(t, c.Disposed())
        }
        for _, pos := range coords {
            c, err := far.Get(pos)
            require.NoError(t, err, "chunk %s", pos)
            assert.Equal(t, byte(pos.X+1), c.(*chunk.Voxels).Get(0, 0, 0))
        }
    }
}

// drifting reports a newer stamp on every read after the first.
type drifting struct {
    pos      chunk.Coord
    base     uint64
    reads    atomic.Uint64
    disposed atomic.Bool
}

func (d *drifting) Stamp() uint64 {
    n := d.reads.Add(1)
    if n == 1 {
        return d.base
    }
    return d.base + 1000*n
}

func (d *drifting) Pos() chunk.Coord { return d.pos }

func (d *drifting) Compare(o chunk.Chunk) int {
    return cmp.Compare(o.(*drifting).Stamp(), d.Stamp())
}

func (d *drifting) MarshalBinary() ([]byte, error) { return []byte{byte(d.base)}, nil }
func (d *drifting) Dispose()                        { d.disposed.Store(true) }
func (d *drifting) Disposed() bool                  { return d.disposed.Load() }

func TestEvictionRanksOnStampsAtPassStart(t *testing.T) {
    bases := map[int32]uint64{0: 30, 1: 10, 2: 20}
    w := &fakeWorld{gen: func(pos chunk.Coord) chunk.Chunk {
        return &drifting{pos: pos, base: bases[pos.X]}
    }}
    far := newFakeStore()
    exec := &manual{}
    p := NewChunkProvider(w, &Config{CacheSize: 2, Store: far, FS: memfs.New(), Executor: exec})
    for x := int32(0); x < 3; x++ {
        p.GetChunk(at(x, 0, 0))
    }
    exec.run()

    assert.Equal(t, []chunk.Coord{at(1, 0, 0)}, far.puts)
    assert.False(t, p.IsChunkAvailable(at(1, 0, 0)))
    assert.Equal(t, 2, p.Len())
}

func TestDefaultExecutorClosedAfterDispose(t *testing.T) {
    p := NewChunkProvider(&fakeWorld{}, &Config{SaveChunks: true, CacheSize: 1, FS: memfs.New()})
    require.NotNil(t, p.owned)
    p.GetChunk(at(0, 0, 0))
    require.NoError(t, <-p.Dispose())
    require.Eventually(t, p.owned.Closed, 5*time.Second, 10*time.Millisecond)

    // still usable, tasks now run on the caller
    p.GetChunk(at(1, 0, 0))
    p.GetChunk(at(2, 0, 0))
    assert.Equal(t, 1, p.Len())
    require.NoError(t, <-p.Dispose())
    assert.Equal(t, int64(3), p.Size())
}

func TestDuplicateInsertIsReported(t *testing.T) {
    m := metrics.NewSimple()
    stale := chunk.NewVoxels(at(4, 0, 0))
    var p *ChunkProvider
    w := &fakeWorld{gen: func(pos chunk.Coord) chunk.Chunk {
        // an entry appears behind the creation lock
        p.near.Store(pos, stale)
        return chunk.NewVoxels(pos)
    }}
    p = NewChunkProvider(w, &Config{CacheSize: 8, FS: memfs.New(), Executor: task.Inline{}, Metrics: m})

    c := p.GetChunk(at(4, 0, 0))
    assert.NotSame(t, stale, c)
    assert.Equal(t, uint64(1), m.Duplicate.Load())
    assert.Same(t, c, p.GetChunk(at(4, 0, 0)))
    assert.False(t, stale.Disposed())
}
