// pkg/store/store.go

package store

import (
    "encoding/binary"
    "fmt"
    "io"
    "strings"
    "sync"

    "AveWorld/pkg/chunk"
    "AveWorld/pkg/compress"
    "AveWorld/pkg/utils"

    "github.com/pkg/errors"
)

var logger = utils.GetLogger("aveworld")

// ErrNotFound is returned by Get when the store has no chunk at a position.
var ErrNotFound = errors.New("chunk not found")

// maxRecordSize bounds decoded records so a corrupt length cannot exhaust memory.
const maxRecordSize = 64 << 20

// Store is the persistent (far) tier of the chunk cache.
// Implementations must be safe for concurrent use.
type Store interface {
    Name() string
    Get(pos chunk.Coord) (chunk.Chunk, error)
    Put(c chunk.Chunk) error
    // ApproximateSize is the number of chunks held.
    ApproximateSize() int64
    // Save writes the whole store as one snapshot.
    Save(w io.Writer) error
    // Load restores a snapshot. Nothing is applied unless the whole
    // snapshot is valid.
    Load(r io.Reader) error
}

// Config for stores.
type Config struct {
    Compression string
    Decoder     chunk.Decoder
    Retries     int
    Prefix      string // key prefix for shared backends
}

func (c *Config) check() error {
    if c.Decoder == nil {
        c.Decoder = chunk.DecodeVoxels
    }
    if compress.NewCompressor(c.Compression) == nil {
        return errors.Errorf("unsupported compress algorithm: %s", c.Compression)
    }
    return nil
}

type Creator func(addr string, conf *Config) (Store, error)

var (
    storesMu sync.Mutex
    stores   = make(map[string]Creator)
)

func Register(name string, register Creator) {
    storesMu.Lock()
    defer storesMu.Unlock()
    stores[name] = register
}

// CreateStorage builds a store from a URI such as "mem://", "null://"
// or "redis://host:6379/1".
func CreateStorage(uri string, conf *Config) (Store, error) {
    if conf == nil {
        conf = &Config{}
    }
    if err := conf.check(); err != nil {
        return nil, err
    }
    name, addr := uri, ""
    if p := strings.Index(uri, "://"); p > 0 {
        name, addr = uri[:p], uri[p+3:]
    }
    storesMu.Lock()
    f, ok := stores[strings.ToLower(name)]
    storesMu.Unlock()
    if !ok {
        return nil, fmt.Errorf("invalid store: %s", uri)
    }
    return f(addr, conf)
}

func encodeRecord(c compress.Compressor, raw []byte) ([]byte, error) {
    buf := make([]byte, binary.MaxVarintLen64+c.CompressBound(len(raw)))
    n := binary.PutUvarint(buf, uint64(len(raw)))
    m, err := c.Compress(buf[n:], raw)
    if err != nil {
        return nil, errors.Wrapf(err, "compress with %s", c.Name())
    }
    return buf[:n+m], nil
}

func decodeRecord(c compress.Compressor, rec []byte) ([]byte, error) {
    size, n := binary.Uvarint(rec)
    if n <= 0 || size > maxRecordSize {
        return nil, errors.New("corrupt record header")
    }
    raw := make([]byte, size)
    m, err := c.Decompress(raw, rec[n:])
    if err != nil {
        return nil, errors.Wrapf(err, "decompress with %s", c.Name())
    }
    if m != int(size) {
        return nil, errors.Errorf("record has %d bytes, want %d", m, size)
    }
    return raw, nil
}

func encodeChunk(comp compress.Compressor, c chunk.Chunk) ([]byte, error) {
    raw, err := c.MarshalBinary()
    if err != nil {
        return nil, errors.Wrapf(err, "marshal chunk %s", c.Pos())
    }
    return encodeRecord(comp, raw)
}

func decodeChunk(conf *Config, comp compress.Compressor, pos chunk.Coord, rec []byte) (chunk.Chunk, error) {
    raw, err := decodeRecord(comp, rec)
    if err != nil {
        return nil, errors.Wrapf(err, "chunk %s", pos)
    }
    c, err := conf.Decoder(raw)
    if err != nil {
        return nil, errors.Wrapf(err, "decode chunk %s", pos)
    }
    if c.Pos() != pos {
        return nil, errors.Errorf("record for %s holds chunk %s", pos, c.Pos())
    }
    return c, nil
}

// recoder converts records written with another compressor.
func recoder(from string, to compress.Compressor) (func([]byte) ([]byte, error), error) {
    src := compress.NewCompressor(from)
    if src == nil {
        return nil, errors.Errorf("snapshot uses unknown compression %q", from)
    }
    if src.Name() == to.Name() {
        return func(rec []byte) ([]byte, error) { return rec, nil }, nil
    }
    return func(rec []byte) ([]byte, error) {
        raw, err := decodeRecord(src, rec)
        if err != nil {
            return nil, err
        }
        return encodeRecord(to, raw)
    }, nil
}

func compressorFor(name string) (compress.Compressor, error) {
    c := compress.NewCompressor(name)
    if c == nil {
        return nil, errors.Errorf("unsupported compress algorithm: %s", name)
    }
    return c, nil
}

type unwrapper interface {
    Unwrap() Store
}

// Usage returns the bytes held by s when its backend tracks them.
func Usage(s Store) (int64, bool) {
    for s != nil {
        if m, ok := s.(interface{ Stats() (int64, int64) }); ok {
            _, used := m.Stats()
            return used, true
        }
        u, ok := s.(unwrapper)
        if !ok {
            break
        }
        s = u.Unwrap()
    }
    return 0, false
}

// Close releases the resources held by s or by the store it wraps.
func Close(s Store) error {
    for s != nil {
        if c, ok := s.(io.Closer); ok {
            return c.Close()
        }
        u, ok := s.(unwrapper)
        if !ok {
            return nil
        }
        s = u.Unwrap()
    }
    return nil
}
