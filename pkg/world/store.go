// pkg/world/store.go

package world

import (
    "os"

    "AveWorld/pkg/store"
    "AveWorld/pkg/utils"

    "github.com/pkg/errors"
)

var logger = utils.GetLogger("aveworld")

// Passphrase returns the snapshot key, preferring AVEWORLD_PASSPHRASE.
func (f *Format) Passphrase() string {
    if p := os.Getenv("AVEWORLD_PASSPHRASE"); p != "" {
        return p
    }
    return f.EncryptKey
}

// OpenStore creates the persistent tier described by f, wrapped for
// encryption and bandwidth limits when they are configured.
func OpenStore(f *Format) (store.Store, error) {
    uri := f.Store
    if uri == "" {
        uri = "mem://"
    }
    s, err := store.CreateStorage(uri, &store.Config{Compression: f.Compression, Retries: 10, Prefix: f.Name + ":"})
    if err != nil {
        return nil, errors.Wrapf(err, "create store for world %s", f.Name)
    }
    if key := f.Passphrase(); key != "" {
        logger.Debugf("snapshots of %s are encrypted", f.Name)
        s = store.NewEncrypted(s, store.NewAESEncryptor(key))
    }
    if f.UploadLimit > 0 || f.DownloadLimit > 0 {
        s = store.NewLimited(s, f.UploadLimit, f.DownloadLimit)
    }
    return s, nil
}
