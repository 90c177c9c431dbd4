// pkg/store/mem.go

package store

import (
    "io"
    "sort"
    "sync"

    "AveWorld/pkg/chunk"
    "AveWorld/pkg/compress"
)

// memStore keeps compressed chunk records in process memory. It only
// survives a restart through Save/Load.
type memStore struct {
    sync.Mutex
    conf       *Config
    compressor compress.Compressor
    used       int64
    records    map[chunk.Coord][]byte
}

func init() {
    Register("mem", newMemStore)
}

func newMemStore(_ string, conf *Config) (Store, error) {
    comp, err := compressorFor(conf.Compression)
    if err != nil {
        return nil, err
    }
    return &memStore{
        conf:       conf,
        compressor: comp,
        records:    make(map[chunk.Coord][]byte),
    }, nil
}

// NewMemStore returns an empty in-memory store.
func NewMemStore(conf *Config) (Store, error) {
    if conf == nil {
        conf = &Config{}
    }
    if err := conf.check(); err != nil {
        return nil, err
    }
    return newMemStore("", conf)
}

func (m *memStore) Name() string {
    return "mem"
}

func (m *memStore) Get(pos chunk.Coord) (chunk.Chunk, error) {
    m.Lock()
    rec, ok := m.records[pos]
    m.Unlock()
    if !ok {
        return nil, ErrNotFound
    }
    return decodeChunk(m.conf, m.compressor, pos, rec)
}

func (m *memStore) Put(c chunk.Chunk) error {
    rec, err := encodeChunk(m.compressor, c)
    if err != nil {
        return err
    }
    pos := c.Pos()
    m.Lock()
    defer m.Unlock()
    if old, ok := m.records[pos]; ok {
        m.used -= int64(len(old))
    }
    m.records[pos] = rec
    m.used += int64(len(rec))
    return nil
}

func (m *memStore) ApproximateSize() int64 {
    m.Lock()
    defer m.Unlock()
    return int64(len(m.records))
}

// Stats returns the number of records and their total size in bytes.
func (m *memStore) Stats() (int64, int64) {
    m.Lock()
    defer m.Unlock()
    return int64(len(m.records)), m.used
}

type entry struct {
    pos chunk.Coord
    rec []byte
}

func (m *memStore) Save(w io.Writer) error {
    // records are never mutated in place, so copying references is enough
    m.Lock()
    entries := make([]entry, 0, len(m.records))
    for pos, rec := range m.records {
        entries = append(entries, entry{pos, rec})
    }
    m.Unlock()
    sort.Slice(entries, func(i, j int) bool {
        return chunk.CompareCoord(entries[i].pos, entries[j].pos) < 0
    })

    sw, err := newSnapshotWriter(w, newHeader(m.Name(), m.conf.Compression, len(entries)))
    if err != nil {
        return err
    }
    for _, e := range entries {
        if err = sw.add(e.pos, e.rec); err != nil {
            return err
        }
    }
    return sw.finish()
}

func (m *memStore) Load(r io.Reader) error {
    hdr, records, err := readSnapshot(r, m.conf.Compression)
    if err != nil {
        return err
    }
    var used int64
    for _, rec := range records {
        used += int64(len(rec))
    }
    m.Lock()
    m.records = records
    m.used = used
    m.Unlock()
    logger.Debugf("loaded %d chunks from snapshot %s (%s)", len(records), hdr.ID, hdr.Writer)
    return nil
}
