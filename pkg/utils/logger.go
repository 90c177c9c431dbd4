// pkg/utils/logger.go

package utils

import (
    "bytes"
    "context"
    "fmt"
    "io"
    glog "log"
    "os"
    "sort"
    "strings"
    "sync"

    plog "github.com/pingcap/log"
    "github.com/sirupsen/logrus"
)

var (
    mu      sync.Mutex
    loggers = make(map[string]*logHandle)
    level   = logrus.InfoLevel
    output  io.Writer = os.Stderr
)

const logTimeFormat = "2006/01/02 15:04:05.000000"

type logHandle struct {
    logrus.Logger
    name string
}

// Format renders "<time> <name>[<pid>] <LEVEL>: <message> k=v ...".
func (l *logHandle) Format(e *logrus.Entry) ([]byte, error) {
    var b bytes.Buffer
    fmt.Fprintf(&b, "%s %s[%d] <%s>: %s",
        e.Time.Format(logTimeFormat), l.name, os.Getpid(), strings.ToUpper(e.Level.String()), e.Message)
    keys := make([]string, 0, len(e.Data))
    for k := range e.Data {
        keys = append(keys, k)
    }
    sort.Strings(keys)
    for _, k := range keys {
        fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
    }
    b.WriteByte('\n')
    return b.Bytes(), nil
}

// Printf lets a handle stand in for the redis client logger.
func (l *logHandle) Printf(_ context.Context, format string, v ...interface{}) {
    l.Debugf(format, v...)
}

// GetLogger returns the logger of a component, creating it with the
// current level and output.
func GetLogger(name string) *logHandle {
    mu.Lock()
    defer mu.Unlock()
    if l, ok := loggers[name]; ok {
        return l
    }
    l := &logHandle{name: name}
    l.Out = output
    l.Formatter = l
    l.Level = level
    l.Hooks = make(logrus.LevelHooks)
    loggers[name] = l
    return l
}

// GetStdLogger adapts l for APIs that take a *log.Logger, such as
// http.Server. Lines are written at lvl.
func GetStdLogger(l *logHandle, lvl logrus.Level) *glog.Logger {
    return glog.New(l.WriterLevel(lvl), "", 0)
}

// SetLogLevel changes the level of every logger, including later ones.
func SetLogLevel(lvl logrus.Level) {
    mu.Lock()
    level = lvl
    for _, l := range loggers {
        l.SetLevel(lvl)
    }
    mu.Unlock()

    // the zap logger under pingcap/log stays one notch quieter
    plvl := map[logrus.Level]string{
        logrus.TraceLevel: "debug",
        logrus.DebugLevel: "info",
        logrus.InfoLevel:  "warn",
        logrus.WarnLevel:  "warn",
        logrus.ErrorLevel: "error",
    }[lvl]
    if plvl == "" {
        plvl = "dpanic"
    }
    if l, p, err := plog.InitLogger(&plog.Config{Level: plvl}); err == nil {
        plog.ReplaceGlobals(l, p)
    }
}

// SetOutFile appends the output of every logger to the named file.
func SetOutFile(name string) error {
    file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
    if err != nil {
        return err
    }
    mu.Lock()
    defer mu.Unlock()
    output = file
    for _, l := range loggers {
        l.SetOutput(file)
    }
    return nil
}
