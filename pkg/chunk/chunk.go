// pkg/chunk/chunk.go

package chunk

import (
    "fmt"
    "strconv"
    "strings"

    "github.com/pkg/errors"
)

// Coord is the position of a chunk in the chunk grid. It is used as the
// map key of every tier, so two distinct positions never share a slot.
type Coord struct{ X, Y, Z int32 }

func (c Coord) String() string {
    return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}

// ParseCoord accepts "x,y,z" with optional surrounding parentheses.
func ParseCoord(s string) (Coord, error) {
    s = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(s), "("), ")")
    ps := strings.Split(s, ",")
    if len(ps) != 3 {
        return Coord{}, errors.Errorf("invalid coordinate %q, want x,y,z", s)
    }
    var v [3]int32
    for i, p := range ps {
        n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 32)
        if err != nil {
            return Coord{}, errors.Wrapf(err, "invalid coordinate %q", s)
        }
        v[i] = int32(n)
    }
    return Coord{v[0], v[1], v[2]}, nil
}

// CompareCoord orders positions by Y, then Z, then X.
func CompareCoord(a, b Coord) int {
    switch {
    case a.Y != b.Y:
        return cmp32(a.Y, b.Y)
    case a.Z != b.Z:
        return cmp32(a.Z, b.Z)
    default:
        return cmp32(a.X, b.X)
    }
}

func cmp32(a, b int32) int {
    if a < b {
        return -1
    }
    if a > b {
        return 1
    }
    return 0
}

// Chunk is a unit of world data owned by exactly one cache tier at a time.
type Chunk interface {
    Pos() Coord
    // Compare is a total order. After an ascending sort the last chunk
    // is the one with the lowest retention priority.
    Compare(other Chunk) int
    MarshalBinary() ([]byte, error)
    // Dispose releases the chunk. Calls after the first are no-ops.
    Dispose()
    Disposed() bool
}

// Toucher is implemented by chunks that record when they were last used.
type Toucher interface {
    Touch()
}

// Decoder rebuilds a chunk from MarshalBinary output.
type Decoder func(data []byte) (Chunk, error)

var ErrDisposed = errors.New("chunk is already disposed")
