// pkg/store/null.go

package store

import (
    "io"

    "AveWorld/pkg/chunk"
)

// nullStore keeps nothing; evicted chunks are regenerated on the next miss.
type nullStore struct {
    conf *Config
}

func init() {
    Register("null", func(_ string, conf *Config) (Store, error) {
        return &nullStore{conf}, nil
    })
}

func (n *nullStore) Name() string                         { return "null" }
func (n *nullStore) Get(chunk.Coord) (chunk.Chunk, error) { return nil, ErrNotFound }
func (n *nullStore) Put(chunk.Chunk) error                { return nil }
func (n *nullStore) ApproximateSize() int64               { return 0 }

func (n *nullStore) Save(w io.Writer) error {
    sw, err := newSnapshotWriter(w, newHeader(n.Name(), n.conf.Compression, 0))
    if err != nil {
        return err
    }
    return sw.finish()
}

func (n *nullStore) Load(r io.Reader) error {
    _, _, err := readSnapshot(r, n.conf.Compression)
    return err
}
