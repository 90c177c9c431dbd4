// cmd/purge.go

package main

import (
    "os"

    "AveWorld/pkg/utils"
    "AveWorld/pkg/world"

    "github.com/urfave/cli/v2"
)

func purgeFlags() *cli.Command {
    return &cli.Command{
        Name:      "purge",
        Usage:     "remove the saved chunks of a world",
        ArgsUsage: "DIR NAME",
        Action:    purge,
        Flags: []cli.Flag{
            &cli.BoolFlag{
                Name:  "format",
                Usage: "remove the world setting too",
            },
        },
    }
}

func purge(ctx *cli.Context) error {
    setLoggerLevel(ctx)
    w := loadWorld(ctx)
    lock := lockSnapshot(w)
    name := w.SnapshotPath()
    if !utils.Exists(name) {
        logger.Infof("no snapshot at %s", name)
    } else if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
        _ = lock.Unlock()
        logger.Fatalf("remove %s: %s", name, err)
    }
    _ = os.Remove(name + ".lock")
    _ = lock.Unlock()
    logger.Infof("removed snapshot %s", name)

    if ctx.Bool("format") {
        setting := world.FormatPath(ctx.Args().Get(0), w.Title())
        if err := os.Remove(setting); err != nil {
            logger.Fatalf("remove %s: %s", setting, err)
        }
        logger.Infof("removed setting %s", setting)
    }
    return nil
}
