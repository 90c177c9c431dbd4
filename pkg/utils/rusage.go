// pkg/utils/rusage.go

package utils

import (
    "fmt"
    "syscall"
)

type Rusage struct {
    syscall.Rusage
}

func (ru *Rusage) GetUtime() float64 {
    return float64(ru.Utime.Sec) + float64(ru.Utime.Usec)/1e6
}

func (ru *Rusage) GetStime() float64 {
    return float64(ru.Stime.Sec) + float64(ru.Stime.Usec)/1e6
}

// Since reports the CPU time spent between ru and now.
func (ru *Rusage) Since() string {
    now := GetRusage()
    return fmt.Sprintf("user %.3fs, system %.3fs", now.GetUtime()-ru.GetUtime(), now.GetStime()-ru.GetStime())
}

func GetRusage() *Rusage {
    var ru syscall.Rusage
    _ = syscall.Getrusage(syscall.RUSAGE_SELF, &ru)
    return &Rusage{ru}
}
