// pkg/world/world.go

package world

import (
    "path/filepath"

    "AveWorld/pkg/chunk"
)

// Local is a world whose snapshot lives in a directory on this host.
type Local struct {
    dir     string
    format  *Format
    terrain Terrain
}

func NewLocal(dir string, format *Format) *Local {
    return &Local{
        dir:     dir,
        format:  format,
        terrain: Terrain{Seed: uint32(format.Seed) ^ uint32(format.Seed>>32)},
    }
}

func (w *Local) Format() *Format { return w.format }

// SavePath is the directory holding the chunk snapshots.
func (w *Local) SavePath() string {
    return filepath.Join(w.dir, "saves")
}

func (w *Local) Title() string {
    return w.format.Name
}

// SnapshotPath is SavePath joined with Title.
func (w *Local) SnapshotPath() string {
    return filepath.Join(w.SavePath(), w.Title())
}

func (w *Local) GenerateChunk(pos chunk.Coord) chunk.Chunk {
    v := chunk.NewVoxels(pos)
    w.terrain.Fill(v)
    return v
}
