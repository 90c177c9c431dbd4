// pkg/chunk/voxels.go

package chunk

import (
    "encoding/binary"
    "sync/atomic"

    "github.com/pkg/errors"
)

const (
    Size   = 16
    Volume = Size * Size * Size

    shiftZ = 4
    shiftY = 8

    formatVersion = 1
)

// usage stamps are drawn from one process-wide logical clock so that
// every Touch is strictly ordered against every other.
var clock atomic.Uint64

// Voxels is a 16x16x16 block of block ids.
//
// The cache holds one reference; readers that may race with eviction
// take their own with Acquire. Blocks are dropped with the last reference.
type Voxels struct {
    refs     int32
    stamp    atomic.Uint64
    disposed atomic.Bool

    pos    Coord
    Blocks []byte
}

func NewVoxels(pos Coord) *Voxels {
    v := &Voxels{refs: 1, pos: pos, Blocks: make([]byte, Volume)}
    v.Touch()
    return v
}

// Idx returns the linear index of local (x,y,z), each in 0..15.
func Idx(x, y, z int) int {
    return x | z<<shiftZ | y<<shiftY
}

func (v *Voxels) Pos() Coord { return v.pos }

func (v *Voxels) Get(x, y, z int) byte { return v.Blocks[Idx(x, y, z)] }

func (v *Voxels) Set(x, y, z int, b byte) { v.Blocks[Idx(x, y, z)] = b }

// Solid counts non-air blocks.
func (v *Voxels) Solid() int {
    n := 0
    for _, b := range v.Blocks {
        if b != 0 {
            n++
        }
    }
    return n
}

func (v *Voxels) Touch() { v.stamp.Store(clock.Add(1)) }

func (v *Voxels) Stamp() uint64 { return v.stamp.Load() }

// Compare sorts recently used chunks first, so the least recently used
// one ends up last. Equal stamps fall back to the position.
func (v *Voxels) Compare(other Chunk) int {
    if o, ok := other.(interface{ Stamp() uint64 }); ok {
        a, b := v.Stamp(), o.Stamp()
        if a > b {
            return -1
        }
        if a < b {
            return 1
        }
    }
    return CompareCoord(v.pos, other.Pos())
}

// Acquire increase the refcount, it fails once the chunk is released.
func (v *Voxels) Acquire() bool {
    for {
        r := atomic.LoadInt32(&v.refs)
        if r <= 0 {
            return false
        }
        if atomic.CompareAndSwapInt32(&v.refs, r, r+1) {
            return true
        }
    }
}

// Release decreases the refcount
func (v *Voxels) Release() {
    if atomic.AddInt32(&v.refs, -1) == 0 {
        v.Blocks = nil
    }
}

func (v *Voxels) Dispose() {
    if v.disposed.CompareAndSwap(false, true) {
        v.Release()
    }
}

func (v *Voxels) Disposed() bool { return v.disposed.Load() }

func (v *Voxels) MarshalBinary() ([]byte, error) {
    if v.Disposed() || !v.Acquire() {
        return nil, ErrDisposed
    }
    defer v.Release()
    buf := make([]byte, 0, 1+3*binary.MaxVarintLen32+binary.MaxVarintLen64+Volume)
    buf = append(buf, formatVersion)
    buf = binary.AppendVarint(buf, int64(v.pos.X))
    buf = binary.AppendVarint(buf, int64(v.pos.Y))
    buf = binary.AppendVarint(buf, int64(v.pos.Z))
    buf = binary.AppendUvarint(buf, v.Stamp())
    return append(buf, v.Blocks...), nil
}

// DecodeVoxels is the Decoder for Voxels.
func DecodeVoxels(data []byte) (Chunk, error) {
    if len(data) == 0 {
        return nil, errors.New("empty chunk record")
    }
    if data[0] != formatVersion {
        return nil, errors.Errorf("unsupported chunk format %d", data[0])
    }
    off := 1
    var xyz [3]int32
    for i := range xyz {
        n, l := binary.Varint(data[off:])
        if l <= 0 {
            return nil, errors.New("corrupt chunk position")
        }
        xyz[i] = int32(n)
        off += l
    }
    stamp, l := binary.Uvarint(data[off:])
    if l <= 0 {
        return nil, errors.New("corrupt chunk stamp")
    }
    off += l
    if len(data)-off != Volume {
        return nil, errors.Errorf("chunk has %d blocks, want %d", len(data)-off, Volume)
    }
    v := &Voxels{refs: 1, pos: Coord{xyz[0], xyz[1], xyz[2]}, Blocks: make([]byte, Volume)}
    copy(v.Blocks, data[off:])
    v.stamp.Store(stamp)
    return v, nil
}
