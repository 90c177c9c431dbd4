// pkg/utils/atime_linux.go

package utils

import (
    "os"
    "syscall"
    "time"
)

// Atime returns the last access time of a file, falling back to mtime.
func Atime(fi os.FileInfo) time.Time {
    if sst, ok := fi.Sys().(*syscall.Stat_t); ok {
        return time.Unix(sst.Atim.Unix())
    }
    return fi.ModTime()
}
