// cmd/info.go

package main

import (
    "AveWorld/pkg/chunk"
    "AveWorld/pkg/store"
    "AveWorld/pkg/task"

    "github.com/pkg/errors"
    "github.com/urfave/cli/v2"
)

type chunkInfo struct {
    Pos    string
    Stored bool
    Solid  int    `json:",omitempty"`
    Stamp  uint64 `json:",omitempty"`
    Error  string `json:",omitempty"`
}

func infoFlags() *cli.Command {
    return &cli.Command{
        Name:      "info",
        Usage:     "show stored chunks of a world",
        ArgsUsage: "DIR NAME X,Y,Z ...",
        Action:    info,
    }
}

func info(ctx *cli.Context) error {
    setLoggerLevel(ctx)
    if ctx.Args().Len() < 3 {
        logger.Infof("X,Y,Z is needed")
        return nil
    }
    w := loadWorld(ctx)
    p, s := newProvider(w, task.Inline{}, nil)
    defer store.Close(s)
    logger.Infof("%d chunks stored in %s", p.Size(), s.Name())

    var out []chunkInfo
    for _, arg := range ctx.Args().Slice()[2:] {
        pos, err := chunk.ParseCoord(arg)
        if err != nil {
            logger.Errorf("%s", err)
            continue
        }
        ci := chunkInfo{Pos: pos.String()}
        c, err := s.Get(pos)
        switch {
        case errors.Is(err, store.ErrNotFound):
        case err != nil:
            ci.Error = err.Error()
        default:
            ci.Stored = true
            if v, ok := c.(*chunk.Voxels); ok {
                ci.Solid = v.Solid()
                ci.Stamp = v.Stamp()
            }
            c.Dispose()
        }
        out = append(out, ci)
    }
    printJson(out)
    return nil
}
