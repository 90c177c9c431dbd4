// pkg/world/config.go

package world

import (
    "encoding/json"
    "path/filepath"
    "time"

    "github.com/go-git/go-billy/v5"
    "github.com/go-git/go-billy/v5/util"
    "github.com/pkg/errors"
)

// Format holds the settings of a world, written once by `format`.
type Format struct {
    Name          string
    UUID          string
    Seed          int64
    Store         string // URI of the persistent tier, e.g. mem:// or redis://host/1
    Compression   string
    CacheSize     int  // chunks kept in memory
    SaveChunks    bool // flush in-memory chunks on dispose
    EncryptKey    string `json:",omitempty"`
    UploadLimit   int64  // snapshot write limit in bytes/s
    DownloadLimit int64  // snapshot read limit in bytes/s
    Created       time.Time
}

func (f *Format) RemoveSecret() {
    if f.EncryptKey != "" {
        f.EncryptKey = "removed"
    }
}

// FormatPath is where the settings of world name live under dir.
func FormatPath(dir, name string) string {
    return filepath.Join(dir, name+".json")
}

func LoadFormat(fs billy.Filesystem, dir, name string) (*Format, error) {
    body, err := util.ReadFile(fs, FormatPath(dir, name))
    if err != nil {
        return nil, errors.Wrapf(err, "world %s is not formatted", name)
    }
    var f Format
    if err = json.Unmarshal(body, &f); err != nil {
        return nil, errors.Wrapf(err, "existing format of %s is broken", name)
    }
    return &f, nil
}

func (f *Format) Save(fs billy.Filesystem, dir string) error {
    data, err := json.MarshalIndent(f, "", "  ")
    if err != nil {
        return err
    }
    if err = fs.MkdirAll(dir, 0755); err != nil {
        return errors.Wrapf(err, "create %s", dir)
    }
    return util.WriteFile(fs, FormatPath(dir, f.Name), data, 0644)
}
