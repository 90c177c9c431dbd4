// cmd/warmup.go

package main

import (
    "AveWorld/pkg/cache"
    "AveWorld/pkg/chunk"
    "AveWorld/pkg/metrics"
    "AveWorld/pkg/store"
    "AveWorld/pkg/task"
    "AveWorld/pkg/utils"

    "github.com/urfave/cli/v2"
)

func warmupFlags() *cli.Command {
    return &cli.Command{
        Name:      "warmup",
        Usage:     "generate or load the chunks around a position and save them",
        ArgsUsage: "DIR NAME",
        Action:    warmup,
        Flags: []cli.Flag{
            &cli.StringFlag{
                Name:  "center",
                Value: "0,0,0",
                Usage: "chunk at the center of the cube",
            },
            &cli.IntFlag{
                Name:    "radius",
                Aliases: []string{"r"},
                Value:   4,
                Usage:   "radius of the cube in chunks",
            },
            &cli.IntFlag{
                Name:    "threads",
                Aliases: []string{"p"},
                Value:   50,
                Usage:   "number of concurrent workers",
            },
        },
    }
}

func warmup(ctx *cli.Context) error {
    setLoggerLevel(ctx)
    w := loadWorld(ctx)
    center, err := chunk.ParseCoord(ctx.String("center"))
    if err != nil {
        logger.Fatalf("center: %s", err)
    }
    coords := cache.Cube(center, int32(ctx.Int("radius")))
    if len(coords) == 0 {
        logger.Infof("nothing to warm up")
        return nil
    }

    lock := lockSnapshot(w)
    defer lock.Unlock()

    pool := task.NewPool(2, 64)
    defer pool.Close()
    m := metrics.NewSimple()
    p, s := newProvider(w, pool, m)
    defer store.Close(s)

    start := utils.GetRusage()
    progress, bar := utils.NewProgressBar("warmup chunks: ", int64(len(coords)), ctx.Bool("quiet"))
    p.Warmup(coords, ctx.Int("threads"), func() { bar.Increment() })
    progress.Wait()

    if err = <-p.Dispose(); err != nil {
        logger.Errorf("dispose: %s", err)
    }
    logger.Infof("warmed up %d chunks: %d generated, %d promoted, %d evicted, %d stored; cpu %s",
        len(coords), m.Generated.Load(), m.Promoted.Load(), m.Evicted.Load(), p.Size(), start.Since())
    for _, f := range m.Failures() {
        logger.Warnf("%s failed at %s: %s", f.Op, f.Time.Format("15:04:05"), f.Err)
    }
    return nil
}
