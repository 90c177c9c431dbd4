// pkg/cache/warmup.go

package cache

import (
    "sync"
    "time"

    "AveWorld/pkg/chunk"
)

// Cube lists the positions within radius of center, bottom layer first.
func Cube(center chunk.Coord, radius int32) []chunk.Coord {
    if radius < 0 {
        return nil
    }
    side := int(2*radius + 1)
    coords := make([]chunk.Coord, 0, side*side*side)
    for y := center.Y - radius; y <= center.Y+radius; y++ {
        for z := center.Z - radius; z <= center.Z+radius; z++ {
            for x := center.X - radius; x <= center.X+radius; x++ {
                coords = append(coords, chunk.Coord{X: x, Y: y, Z: z})
            }
        }
    }
    return coords
}

// Warmup loads coords with concurrent workers. progress, when not nil, is
// called after each chunk.
func (p *ChunkProvider) Warmup(coords []chunk.Coord, concurrent int, progress func()) {
    if concurrent < 1 {
        concurrent = 1
    }
    logger.Infof("start to warmup %d chunks with %d workers", len(coords), concurrent)
    start := time.Now()
    todo := make(chan chunk.Coord, 1024)
    var wg sync.WaitGroup
    for i := 0; i < concurrent; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            for pos := range todo {
                p.GetChunk(pos)
                if progress != nil {
                    progress()
                }
            }
        }()
    }
    for _, pos := range coords {
        todo <- pos
    }
    close(todo)
    wg.Wait()
    logger.Infof("warmup %d chunks in %s, %d in memory, %d stored", len(coords), time.Since(start), p.Len(), p.Size())
}
