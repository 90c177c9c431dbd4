// cmd/status.go

package main

import (
    "bytes"
    "encoding/json"
    "fmt"
    "os"
    "time"

    "AveWorld/pkg/store"
    "AveWorld/pkg/utils"
    "AveWorld/pkg/world"

    "github.com/urfave/cli/v2"
)

type snapshotInfo struct {
    Path      string
    Size      int64
    Modified  time.Time
    Accessed  time.Time
    Encrypted bool
    Header    *store.Header `json:",omitempty"`
}

type sections struct {
    Setting  *world.Format
    Snapshot *snapshotInfo `json:",omitempty"`
}

func printJson(v interface{}) {
    output, err := json.MarshalIndent(v, "", "  ")
    if err != nil {
        logger.Fatalf("json: %s", err)
    }
    fmt.Println(string(output))
}

func inspectSnapshot(w *world.Local) *snapshotInfo {
    path := w.SnapshotPath()
    fi, err := os.Stat(path)
    if err != nil {
        if !os.IsNotExist(err) {
            logger.Warnf("stat %s: %s", path, err)
        }
        return nil
    }
    info := &snapshotInfo{Path: path, Size: fi.Size(), Modified: fi.ModTime(), Accessed: utils.Atime(fi)}
    data, err := os.ReadFile(path)
    if err != nil {
        logger.Warnf("read %s: %s", path, err)
        return info
    }
    if key := w.Format().Passphrase(); key != "" {
        info.Encrypted = true
        if data, err = store.NewAESEncryptor(key).Decrypt(data); err != nil {
            logger.Warnf("decrypt %s: %s", path, err)
            return info
        }
    }
    if info.Header, err = store.ReadHeader(bytes.NewReader(data)); err != nil {
        logger.Warnf("snapshot %s: %s", path, err)
    }
    return info
}

func status(ctx *cli.Context) error {
    setLoggerLevel(ctx)
    w := loadWorld(ctx)
    snap := inspectSnapshot(w)
    format := *w.Format()
    format.RemoveSecret()
    printJson(&sections{&format, snap})
    return nil
}

func statusFlags() *cli.Command {
    return &cli.Command{
        Name:      "status",
        Usage:     "show settings and snapshot of a world",
        ArgsUsage: "DIR NAME",
        Action:    status,
    }
}
