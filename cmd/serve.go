// cmd/serve.go

package main

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "os"
    "os/signal"
    "path"
    "path/filepath"
    "runtime"
    "syscall"
    "time"

    "AveWorld/pkg/api"
    "AveWorld/pkg/metrics"
    "AveWorld/pkg/store"
    "AveWorld/pkg/task"
    "AveWorld/pkg/utils"

    "github.com/google/uuid"
    "github.com/juicedata/godaemon"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
    "github.com/sirupsen/logrus"
    "github.com/urfave/cli/v2"
)

const leaseTTL = 30 * time.Second

func hostname() string {
    host, err := os.Hostname()
    if err != nil {
        return "unknown"
    }
    return host
}

func checkServing(name, addr string) {
    url := "http://" + addr + "/health"
    if addr != "" && addr[0] == ':' {
        url = "http://127.0.0.1" + addr + "/health"
    }
    for i := 0; i < 20; i++ {
        time.Sleep(time.Millisecond * 500)
        resp, err := http.Get(url)
        if err == nil {
            _ = resp.Body.Close()
            if resp.StatusCode == http.StatusOK {
                logger.Infof("\033[92mOK\033[0m, %s is served at %s", name, addr)
                return
            }
        }
        os.Stdout.WriteString(".")
        os.Stdout.Sync()
    }
    os.Stdout.WriteString("\n")
    logger.Fatalf("fail to serve after 10 seconds, please run in foreground")
}

func makeDaemon(c *cli.Context, name, addr string) error {
    var attrs godaemon.DaemonAttr
    attrs.OnExit = func(stage int) error {
        if stage != 0 {
            return nil
        }
        checkServing(name, addr)
        return nil
    }

    // the current dir will be changed to root in daemon,
    // so the world directory has to be an absolute path.
    if godaemon.Stage() == 0 {
        dir := c.Args().Get(0)
        for i, a := range os.Args {
            if a == dir {
                adir, err := filepath.Abs(dir)
                if err == nil {
                    os.Args[i] = adir
                } else {
                    logger.Warnf("abs of %s: %s", dir, err)
                }
            }
        }
        var err error
        logfile := c.String("log")
        attrs.Stdout, err = os.OpenFile(logfile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
        if err != nil {
            logger.Errorf("open log file %s: %s", logfile, err)
        }
    }
    _, _, err := godaemon.MakeDaemon(&attrs)
    return err
}

func serveFlags() *cli.Command {
    var defaultLogDir = "/var/log"
    if runtime.GOOS == "darwin" {
        if homeDir, err := os.UserHomeDir(); err == nil {
            defaultLogDir = path.Join(homeDir, ".aveworld")
        }
    }
    return &cli.Command{
        Name:      "serve",
        Usage:     "serve chunks of a world over HTTP",
        ArgsUsage: "DIR NAME",
        Action:    serve,
        Flags: []cli.Flag{
            &cli.StringFlag{
                Name:  "listen",
                Value: "127.0.0.1:7400",
                Usage: "address to listen on",
            },
            &cli.BoolFlag{
                Name:    "d",
                Aliases: []string{"background"},
                Usage:   "run in background",
            },
            &cli.StringFlag{
                Name:  "log",
                Value: path.Join(defaultLogDir, "aveworld.log"),
                Usage: "path of log file when running in background",
            },
            &cli.DurationFlag{
                Name:  "flush-interval",
                Value: time.Second,
                Usage: "interval of the periodic eviction check",
            },
            &cli.IntFlag{
                Name:  "workers",
                Value: 2,
                Usage: "workers running eviction and disposal",
            },
        },
    }
}

func serve(c *cli.Context) error {
    setLoggerLevel(c)
    w := loadWorld(c)
    addr := c.String("listen")
    if c.Bool("background") {
        if err := makeDaemon(c, w.Title(), addr); err != nil {
            logger.Fatalf("make daemon: %s", err)
        }
        if err := utils.SetOutFile(c.String("log")); err != nil {
            logger.Warnf("log to %s: %s", c.String("log"), err)
        }
    }

    lock := lockSnapshot(w)
    defer lock.Unlock()

    reg := prometheus.NewRegistry()
    reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    pool := task.NewPool(c.Int("workers"), 64)
    p, s := newProvider(w, pool, metrics.NewProm("aveworld", reg))
    defer store.Close(s)

    owner := fmt.Sprintf("%s:%d:%s", hostname(), os.Getpid(), uuid.New().String())
    locker, shared := store.LockerOf(s)
    if shared {
        if err := locker.Lock(owner, leaseTTL); err != nil {
            logger.Fatalf("world %s: %s", w.Title(), err)
        }
        defer func() {
            if err := locker.Unlock(owner); err != nil {
                logger.Warnf("release lease of %s: %s", s.Name(), err)
            }
        }()
    }

    srv := &http.Server{
        Addr:     addr,
        Handler:  api.NewRouter(p, reg),
        ErrorLog: utils.GetStdLogger(utils.GetLogger("http"), logrus.WarnLevel),
    }
    served := make(chan error, 1)
    go func() {
        logger.Infof("Serving world %s at %s ...", w.Title(), addr)
        served <- srv.ListenAndServe()
    }()

    signals := make(chan os.Signal, 1)
    signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
    ticker := time.NewTicker(c.Duration("flush-interval"))
    renewed := time.Now()
    defer ticker.Stop()

loop:
    for {
        select {
        case <-ticker.C:
            p.FlushCache()
            if shared && time.Since(renewed) > leaseTTL/3 {
                if err := locker.Lock(owner, leaseTTL); err != nil {
                    logger.Errorf("renew lease of %s: %s", s.Name(), err)
                    break loop
                }
                renewed = time.Now()
            }
        case sig := <-signals:
            logger.Infof("received %s, shutting down", sig)
            break loop
        case err := <-served:
            if !errors.Is(err, http.ErrServerClosed) {
                logger.Errorf("http: %s", err)
            }
            break loop
        }
    }

    api.SetDraining(true)
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    if err := srv.Shutdown(ctx); err != nil {
        logger.Warnf("shutdown http: %s", err)
    }
    if err := <-p.Dispose(); err != nil {
        logger.Errorf("dispose: %s", err)
    }
    pool.Close()
    logger.Infof("world %s saved, %d chunks stored", w.Title(), p.Size())
    return nil
}
