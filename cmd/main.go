// cmd/main.go

package main

import (
    "os"
    "path/filepath"

    "AveWorld/pkg/cache"
    "AveWorld/pkg/metrics"
    "AveWorld/pkg/store"
    "AveWorld/pkg/task"
    "AveWorld/pkg/utils"
    "AveWorld/pkg/version"
    "AveWorld/pkg/world"

    "github.com/go-git/go-billy/v5/osfs"
    "github.com/google/gops/agent"
    "github.com/sirupsen/logrus"
    "github.com/urfave/cli/v2"
)

var logger = utils.GetLogger("aveworld")

func main() {
    err := Main(os.Args)
    if err != nil {
        logger.Fatal(err)
    }
}

func Main(args []string) error {
    cli.VersionFlag = &cli.BoolFlag{
        Name: "version", Aliases: []string{"V"},
        Usage: "print only the version",
    }
    app := &cli.App{
        Name:                 "aveworld",
        Usage:                "A two-tier chunk cache for voxel worlds.",
        Version:              version.Version(),
        EnableBashCompletion: true,
        Flags:                globalFlags(),
        Commands: []*cli.Command{
            formatFlags(),
            statusFlags(),
            infoFlags(),
            warmupFlags(),
            serveFlags(),
            purgeFlags(),
        },
    }
    return app.Run(args)
}

func globalFlags() []cli.Flag {
    return []cli.Flag{
        &cli.BoolFlag{
            Name:    "verbose",
            Aliases: []string{"debug", "v"},
            Usage:   "enable debug log",
        },
        &cli.BoolFlag{
            Name:  "trace",
            Usage: "enable trace log",
        },
        &cli.BoolFlag{
            Name:    "quiet",
            Aliases: []string{"q"},
            Usage:   "only warning and errors",
        },
        &cli.StringFlag{
            Name:  "debug-agent",
            Usage: "address of the gops agent (e.g. 127.0.0.1:6070)",
        },
    }
}

func setLoggerLevel(c *cli.Context) {
    switch {
    case c.Bool("trace"):
        utils.SetLogLevel(logrus.TraceLevel)
    case c.Bool("verbose"):
        utils.SetLogLevel(logrus.DebugLevel)
    case c.Bool("quiet"):
        utils.SetLogLevel(logrus.WarnLevel)
    default:
        utils.SetLogLevel(logrus.InfoLevel)
    }
    if addr := c.String("debug-agent"); addr != "" {
        if err := agent.Listen(agent.Options{Addr: addr, ShutdownCleanup: true}); err != nil {
            logger.Warnf("start debug agent at %s: %s", addr, err)
        } else {
            logger.Debugf("debug agent listening on %s", addr)
        }
    }
}

// loadWorld reads DIR and NAME from the arguments.
func loadWorld(c *cli.Context) *world.Local {
    if c.Args().Len() < 2 {
        logger.Fatalf("DIR and NAME are needed")
    }
    dir, err := filepath.Abs(c.Args().Get(0))
    if err != nil {
        logger.Fatalf("abs of %s: %s", c.Args().Get(0), err)
    }
    f, err := world.LoadFormat(osfs.New("/"), dir, c.Args().Get(1))
    if err != nil {
        logger.Fatalf("load setting: %s", err)
    }
    return world.NewLocal(dir, f)
}

// lockSnapshot keeps other processes from replacing the snapshot of w.
func lockSnapshot(w *world.Local) *utils.FileLock {
    if err := os.MkdirAll(w.SavePath(), 0755); err != nil {
        logger.Fatalf("create %s: %s", w.SavePath(), err)
    }
    l, err := utils.LockFile(w.SnapshotPath()+".lock", false)
    if err != nil {
        logger.Fatalf("world %s is in use by another process: %s", w.Title(), err)
    }
    return l
}

func newProvider(w *world.Local, exec task.Executor, m metrics.Interface) (*cache.ChunkProvider, store.Store) {
    f := w.Format()
    s, err := world.OpenStore(f)
    if err != nil {
        logger.Fatalf("store: %s", err)
    }
    logger.Debugf("world %s uses %s", f.Name, s.Name())
    return cache.NewChunkProvider(w, &cache.Config{
        SaveChunks: f.SaveChunks,
        CacheSize:  f.CacheSize,
        Store:      s,
        Executor:   exec,
        Metrics:    m,
    }), s
}
