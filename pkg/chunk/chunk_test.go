package chunk

import (
    "sort"
    "sync"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestParseCoord(t *testing.T) {
    c, err := ParseCoord("(1, -2,3)")
    require.NoError(t, err)
    assert.Equal(t, Coord{1, -2, 3}, c)
    assert.Equal(t, "(1,-2,3)", c.String())

    _, err = ParseCoord("1,2")
    assert.Error(t, err)
    _, err = ParseCoord("1,b,2")
    assert.Error(t, err)
}

func TestVoxelsEncoding(t *testing.T) {
    v := NewVoxels(Coord{-7, 3, 120})
    v.Set(1, 2, 3, 9)
    v.Set(15, 15, 15, 4)

    data, err := v.MarshalBinary()
    require.NoError(t, err)

    c, err := DecodeVoxels(data)
    require.NoError(t, err)
    got := c.(*Voxels)
    assert.Equal(t, v.Pos(), got.Pos())
    assert.Equal(t, v.Stamp(), got.Stamp())
    assert.Equal(t, v.Blocks, got.Blocks)
    assert.Equal(t, 2, got.Solid())

    _, err = DecodeVoxels(data[:len(data)-1])
    assert.Error(t, err)
    data[0] = 42
    _, err = DecodeVoxels(data)
    assert.Error(t, err)
}

func TestVoxelsOrderLeastRecentlyUsedLast(t *testing.T) {
    a := NewVoxels(Coord{0, 0, 0})
    b := NewVoxels(Coord{0, 0, 1})
    c := NewVoxels(Coord{0, 0, 2})
    b.Touch()

    cs := []Chunk{a, b, c}
    sort.Slice(cs, func(i, j int) bool { return cs[i].Compare(cs[j]) < 0 })
    assert.Equal(t, []Chunk{b, c, a}, cs)
    assert.Equal(t, 0, a.Compare(a))
}

func TestVoxelsDisposeOnce(t *testing.T) {
    v := NewVoxels(Coord{})
    require.True(t, v.Acquire())
    v.Dispose()
    v.Dispose()
    assert.True(t, v.Disposed())
    // the extra reference keeps blocks readable
    assert.NotNil(t, v.Blocks)
    v.Release()
    assert.Nil(t, v.Blocks)
    assert.False(t, v.Acquire())

    _, err := v.MarshalBinary()
    assert.ErrorIs(t, err, ErrDisposed)
}

func TestMarshalWhileDisposing(t *testing.T) {
    for i := 0; i < 2000; i++ {
        v := NewVoxels(Coord{X: int32(i)})
        v.Set(3, 3, 3, 7)
        var wg sync.WaitGroup
        var data []byte
        var err error
        wg.Add(2)
        go func() {
            defer wg.Done()
            data, err = v.MarshalBinary()
        }()
        go func() {
            defer wg.Done()
            v.Dispose()
        }()
        wg.Wait()
        if err != nil {
            require.ErrorIs(t, err, ErrDisposed)
            continue
        }
        // a record is complete or not written at all
        got, err := DecodeVoxels(data)
        require.NoError(t, err)
        require.Equal(t, byte(7), got.(*Voxels).Get(3, 3, 3))
    }
}
