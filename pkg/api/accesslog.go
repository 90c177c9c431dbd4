// pkg/api/accesslog.go

package api

import (
    "fmt"
    "net/http"
    "sync"
    "time"

    "AveWorld/pkg/utils"

    "github.com/go-chi/chi/v5/middleware"
)

const slowRequest = time.Second

type logReader struct {
    buffer chan []byte
}

var (
    readerLock sync.Mutex
    readers    = make(map[uint64]*logReader)
    lastReader uint64
)

type statusWriter struct {
    http.ResponseWriter
    status int
    size   int
}

func (w *statusWriter) WriteHeader(code int) {
    w.status = code
    w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
    if w.status == 0 {
        w.status = http.StatusOK
    }
    n, err := w.ResponseWriter.Write(b)
    w.size += n
    return n, err
}

func (w *statusWriter) Flush() {
    if f, ok := w.ResponseWriter.(http.Flusher); ok {
        f.Flush()
    }
}

// AccessLog logs every request at debug level, slow ones at info, and
// copies the line to the /accesslog subscribers.
func AccessLog(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        sw := &statusWriter{ResponseWriter: w}
        next.ServeHTTP(sw, r)
        used := time.Since(start)

        cmd := fmt.Sprintf("%s %s %d %d <%.6f>", r.Method, r.URL.Path, sw.status, sw.size, used.Seconds())
        if used >= slowRequest {
            logger.Infof("slow request: %s", cmd)
        } else {
            logger.Debugf("request: %s", cmd)
        }
        if r.URL.Path == "/accesslog" {
            return
        }
        ts := utils.Now().Format("2006.01.02 15:04:05.000000")
        line := []byte(fmt.Sprintf("%s [%s,%s] %s\n", ts, r.RemoteAddr, middleware.GetReqID(r.Context()), cmd))
        readerLock.Lock()
        for _, lr := range readers {
            select {
            case lr.buffer <- line:
            default:
            }
        }
        readerLock.Unlock()
    })
}

func openAccessLog() (uint64, *logReader) {
    readerLock.Lock()
    defer readerLock.Unlock()
    lastReader++
    lr := &logReader{buffer: make(chan []byte, 10240)}
    readers[lastReader] = lr
    return lastReader, lr
}

func closeAccessLog(id uint64) {
    readerLock.Lock()
    defer readerLock.Unlock()
    delete(readers, id)
}

// streamAccessLog sends access log lines until the client goes away. A
// "#" line is sent every second of silence.
func streamAccessLog(w http.ResponseWriter, r *http.Request) {
    id, lr := openAccessLog()
    defer closeAccessLog(id)
    w.Header().Set("Content-Type", "text/plain; charset=utf-8")
    w.WriteHeader(http.StatusOK)
    flusher, _ := w.(http.Flusher)
    t := time.NewTicker(time.Second)
    defer t.Stop()
    for {
        var err error
        select {
        case <-r.Context().Done():
            return
        case line := <-lr.buffer:
            _, err = w.Write(line)
        case <-t.C:
            _, err = w.Write([]byte("#\n"))
        }
        if err != nil {
            return
        }
        if flusher != nil {
            flusher.Flush()
        }
    }
}
