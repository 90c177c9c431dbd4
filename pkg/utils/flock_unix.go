// pkg/utils/flock_unix.go

package utils

import (
    "os"

    "github.com/pkg/errors"
    "golang.org/x/sys/unix"
)

// FileLock is an advisory lock on a sidecar file, used to keep two
// processes from replacing the same snapshot at once.
type FileLock struct {
    f *os.File
}

// LockFile takes an exclusive flock on path, creating it if needed.
// With wait unset it fails immediately when the lock is held elsewhere.
func LockFile(path string, wait bool) (*FileLock, error) {
    f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
    if err != nil {
        return nil, errors.Wrapf(err, "open lock %s", path)
    }
    how := unix.LOCK_EX
    if !wait {
        how |= unix.LOCK_NB
    }
    if err = unix.Flock(int(f.Fd()), how); err != nil {
        _ = f.Close()
        return nil, errors.Wrapf(err, "flock %s", path)
    }
    return &FileLock{f}, nil
}

func (l *FileLock) Unlock() error {
    if l == nil || l.f == nil {
        return nil
    }
    err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
    if cerr := l.f.Close(); err == nil {
        err = cerr
    }
    l.f = nil
    return err
}
