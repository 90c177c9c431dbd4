package world

import (
    "testing"

    "AveWorld/pkg/chunk"

    "github.com/go-git/go-billy/v5/memfs"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestGenerateDeterministic(t *testing.T) {
    f := &Format{Name: "alpha", Seed: 42}
    a := NewLocal("/w", f).GenerateChunk(chunk.Coord{X: 3, Y: 1, Z: -2}).(*chunk.Voxels)
    b := NewLocal("/w", f).GenerateChunk(chunk.Coord{X: 3, Y: 1, Z: -2}).(*chunk.Voxels)
    assert.Equal(t, a.Blocks, b.Blocks)

    other := NewLocal("/w", &Format{Name: "beta", Seed: 43}).GenerateChunk(chunk.Coord{X: 3, Y: 1, Z: -2}).(*chunk.Voxels)
    assert.NotEqual(t, a.Blocks, other.Blocks)
}

func TestTerrainLayers(t *testing.T) {
    w := NewLocal("/w", &Format{Name: "alpha", Seed: 7})
    // heights stay within [16, 48), so y chunk 0 is solid stone at the bottom
    // and y chunk 4 (64..79) is all air
    low := w.GenerateChunk(chunk.Coord{Y: 0}).(*chunk.Voxels)
    assert.Equal(t, Stone, low.Get(0, 0, 0))
    high := w.GenerateChunk(chunk.Coord{Y: 4}).(*chunk.Voxels)
    assert.Equal(t, 0, high.Solid())

    h := w.terrain.Height(5, 5)
    assert.GreaterOrEqual(t, h, int32(baseHeight))
    assert.Less(t, h, int32(baseHeight+relief))
}

func TestFormatSaveLoad(t *testing.T) {
    fs := memfs.New()
    f := &Format{Name: "alpha", UUID: "u-1", Seed: 1, Store: "mem://", CacheSize: 64, EncryptKey: "secret"}
    require.NoError(t, f.Save(fs, "/data"))

    got, err := LoadFormat(fs, "/data", "alpha")
    require.NoError(t, err)
    assert.Equal(t, f.UUID, got.UUID)
    assert.Equal(t, "secret", got.EncryptKey)
    got.RemoveSecret()
    assert.Equal(t, "removed", got.EncryptKey)

    _, err = LoadFormat(fs, "/data", "missing")
    assert.Error(t, err)

    w := NewLocal("/data", got)
    assert.Equal(t, "/data/saves/alpha", w.SnapshotPath())
}

func TestOpenStore(t *testing.T) {
    s, err := OpenStore(&Format{Name: "alpha", Compression: "zstd"})
    require.NoError(t, err)
    assert.Equal(t, "mem", s.Name())

    t.Setenv("AVEWORLD_PASSPHRASE", "from env")
    f := &Format{Name: "alpha", Store: "mem://", UploadLimit: 1 << 20}
    assert.Equal(t, "from env", f.Passphrase())
    s, err = OpenStore(f)
    require.NoError(t, err)
    require.NoError(t, s.Put(chunk.NewVoxels(chunk.Coord{X: 1})))
    assert.Equal(t, int64(1), s.ApproximateSize())

    _, err = OpenStore(&Format{Name: "alpha", Store: "tape://"})
    assert.Error(t, err)
}
