package main

import (
    "os"
    "path/filepath"
    "testing"

    "AveWorld/pkg/world"

    "github.com/go-git/go-billy/v5/osfs"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestFormatWarmupPurge(t *testing.T) {
    dir := t.TempDir()
    require.NoError(t, Main([]string{"aveworld", "-q", "format", "--seed", "5", "--cache-size", "4", "--compress", "zstd", dir, "test-world"}))
    f, err := world.LoadFormat(osfs.New("/"), dir, "test-world")
    require.NoError(t, err)
    assert.Equal(t, int64(5), f.Seed)
    assert.Equal(t, 4, f.CacheSize)
    assert.True(t, f.SaveChunks)

    // formatting again is a no-op with --no-update
    require.NoError(t, Main([]string{"aveworld", "-q", "format", "--no-update", dir, "test-world"}))

    require.NoError(t, Main([]string{"aveworld", "-q", "warmup", "--radius", "1", "--threads", "3", dir, "test-world"}))
    snapshot := filepath.Join(dir, "saves", "test-world")
    _, err = os.Stat(snapshot)
    require.NoError(t, err)

    w := world.NewLocal(dir, f)
    require.NotNil(t, inspectSnapshot(w).Header)
    assert.Equal(t, int64(27), inspectSnapshot(w).Header.Entries)

    require.NoError(t, Main([]string{"aveworld", "-q", "status", dir, "test-world"}))
    require.NoError(t, Main([]string{"aveworld", "-q", "info", dir, "test-world", "0,0,0", "9,9,9"}))

    require.NoError(t, Main([]string{"aveworld", "-q", "purge", dir, "test-world"}))
    _, err = os.Stat(snapshot)
    assert.True(t, os.IsNotExist(err))
}
