// cmd/format.go

package main

import (
    "math/rand"
    "os"
    "path/filepath"
    "regexp"
    "time"

    "AveWorld/pkg/chunk"
    "AveWorld/pkg/compress"
    "AveWorld/pkg/store"
    "AveWorld/pkg/world"

    "github.com/go-git/go-billy/v5/osfs"
    "github.com/google/uuid"
    "github.com/pkg/errors"
    "github.com/urfave/cli/v2"
)

func doTesting(s store.Store) error {
    probe := chunk.Coord{X: rand.Int31(), Y: -rand.Int31(), Z: rand.Int31()}
    _, err := s.Get(probe)
    if err != nil && !errors.Is(err, store.ErrNotFound) {
        return errors.Wrap(err, "failed to get")
    }
    if s.ApproximateSize() < 0 {
        return errors.New("negative size")
    }
    return nil
}

func test(s store.Store) error {
    var err error
    for i := 0; i < 3; i++ {
        if err = doTesting(s); err == nil {
            return nil
        }
        time.Sleep(time.Second * time.Duration(i*3+1))
    }
    return err
}

func format(c *cli.Context) error {
    setLoggerLevel(c)
    if c.Args().Len() < 2 {
        logger.Fatalf("DIR and NAME are required")
    }
    dir, err := filepath.Abs(c.Args().Get(0))
    if err != nil {
        logger.Fatalf("abs of %s: %s", c.Args().Get(0), err)
    }
    name := c.Args().Get(1)
    validName := regexp.MustCompile(`^[a-z0-9][a-z0-9\-]{1,61}[a-z0-9]$`)
    if !validName.MatchString(name) {
        logger.Fatalf("invalid name: %s, only alphabet, number and - are allowed, and the length should be 3 to 63 characters.", name)
    }
    if compress.NewCompressor(c.String("compress")) == nil {
        logger.Fatalf("Unsupported compress algorithm: %s", c.String("compress"))
    }

    fs := osfs.New("/")
    if old, err := world.LoadFormat(fs, dir, name); err == nil {
        if c.Bool("no-update") {
            return nil
        }
        if !c.Bool("force") {
            logger.Fatalf("world %s (%s) exists in %s, use --force to overwrite", name, old.UUID, dir)
        }
    }

    seed := c.Int64("seed")
    if !c.IsSet("seed") {
        seed = rand.Int63()
    }
    f := world.Format{
        Name:          name,
        UUID:          uuid.New().String(),
        Seed:          seed,
        Store:         c.String("store"),
        Compression:   c.String("compress"),
        CacheSize:     c.Int("cache-size"),
        SaveChunks:    !c.Bool("no-save"),
        EncryptKey:    c.String("encrypt-key"),
        UploadLimit:   c.Int64("upload-limit") << 20,
        DownloadLimit: c.Int64("download-limit") << 20,
        Created:       time.Now().UTC(),
    }
    if f.EncryptKey == "" && os.Getenv("AVEWORLD_PASSPHRASE") != "" {
        f.EncryptKey = os.Getenv("AVEWORLD_PASSPHRASE")
        os.Unsetenv("AVEWORLD_PASSPHRASE")
    }

    s, err := world.OpenStore(&f)
    if err != nil {
        logger.Fatalf("store: %s", err)
    }
    logger.Infof("Chunks are stored in %s", s.Name())
    if err := test(s); err != nil {
        logger.Fatalf("Store %s is not configured correctly: %s", s.Name(), err)
    }
    _ = store.Close(s)

    if err = f.Save(fs, dir); err != nil {
        logger.Fatalf("format: %s", err)
    }
    f.RemoveSecret()
    logger.Infof("World is formatted as %+v", f)
    return nil
}

func formatFlags() *cli.Command {
    return &cli.Command{
        Name:      "format",
        Usage:     "format a world",
        ArgsUsage: "DIR NAME",
        Flags: []cli.Flag{
            &cli.StringFlag{
                Name:  "store",
                Value: "mem://",
                Usage: "persistent chunk store (mem://, redis://host:port/db, null://)",
            },
            &cli.StringFlag{
                Name:  "compress",
                Value: "gzip",
                Usage: "compression algorithm (gzip, lz4, zstd, none)",
            },
            &cli.Int64Flag{
                Name:  "seed",
                Usage: "terrain seed, random by default",
            },
            &cli.IntFlag{
                Name:  "cache-size",
                Value: 1024,
                Usage: "number of chunks kept in memory",
            },
            &cli.BoolFlag{
                Name:  "no-save",
                Usage: "don't save in-memory chunks on shutdown",
            },
            &cli.StringFlag{
                Name:  "encrypt-key",
                Usage: "passphrase to encrypt snapshots (env AVEWORLD_PASSPHRASE)",
            },
            &cli.Int64Flag{
                Name:  "upload-limit",
                Usage: "snapshot write limit in MiB/s",
            },
            &cli.Int64Flag{
                Name:  "download-limit",
                Usage: "snapshot read limit in MiB/s",
            },
            &cli.BoolFlag{
                Name:  "force",
                Usage: "overwrite existing format",
            },
            &cli.BoolFlag{
                Name:  "no-update",
                Usage: "don't update existing world",
            },
        },
        Action: format,
    }
}
