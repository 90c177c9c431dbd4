// pkg/world/gen.go

package world

import (
    "AveWorld/pkg/chunk"
)

// Block ids.
const (
    Air byte = iota
    Stone
    Dirt
    Grass
    Water
)

const (
    seaLevel   = 30
    baseHeight = 16
    relief     = 32
    cell       = 16 // lattice spacing of the height noise
)

// Terrain fills chunks from a seeded height map. The result depends only
// on the seed and the chunk position.
type Terrain struct {
    Seed uint32
}

// lattice height in [0, relief)
func (t Terrain) lattice(x, z int32) int32 {
    return int32(hash2(t.Seed, x, z) % relief)
}

func floorDiv(a, b int32) int32 {
    q := a / b
    if (a%b != 0) && ((a < 0) != (b < 0)) {
        q--
    }
    return q
}

// Height returns the surface height of world column (x, z).
func (t Terrain) Height(x, z int32) int32 {
    cx, cz := floorDiv(x, cell), floorDiv(z, cell)
    fx, fz := x-cx*cell, z-cz*cell
    h00, h10 := t.lattice(cx, cz), t.lattice(cx+1, cz)
    h01, h11 := t.lattice(cx, cz+1), t.lattice(cx+1, cz+1)
    top := h00*(cell-fx) + h10*fx
    bottom := h01*(cell-fx) + h11*fx
    return baseHeight + (top*(cell-fz)+bottom*fz)/(cell*cell)
}

func (t Terrain) Fill(v *chunk.Voxels) {
    pos := v.Pos()
    for lz := 0; lz < chunk.Size; lz++ {
        for lx := 0; lx < chunk.Size; lx++ {
            h := t.Height(pos.X*chunk.Size+int32(lx), pos.Z*chunk.Size+int32(lz))
            for ly := 0; ly < chunk.Size; ly++ {
                y := pos.Y*chunk.Size + int32(ly)
                var b byte
                switch {
                case y < h-3:
                    b = Stone
                case y < h-1:
                    b = Dirt
                case y == h-1:
                    b = Grass
                case y < seaLevel:
                    b = Water
                }
                if b != Air {
                    v.Set(lx, ly, lz, b)
                }
            }
        }
    }
}
