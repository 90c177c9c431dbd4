// pkg/store/bwlimit.go

package store

import (
    "io"

    "github.com/juju/ratelimit"
)

type limitedReader struct {
    io.Reader
    r *ratelimit.Bucket
}

func (l *limitedReader) Read(buf []byte) (int, error) {
    n, err := l.Reader.Read(buf)
    if l.r != nil {
        l.r.Wait(int64(n))
    }
    return n, err
}

type limitedWriter struct {
    io.Writer
    w *ratelimit.Bucket
}

func (l *limitedWriter) Write(buf []byte) (int, error) {
    if l.w != nil {
        l.w.Wait(int64(len(buf)))
    }
    return l.Writer.Write(buf)
}

type bwlimit struct {
    Store
    upLimit   *ratelimit.Bucket
    downLimit *ratelimit.Bucket
}

// NewLimited throttles snapshot saving to up and loading to down bytes
// per second; zero means unlimited.
func NewLimited(s Store, up, down int64) Store {
    bw := &bwlimit{s, nil, nil}
    if up > 0 {
        bw.upLimit = ratelimit.NewBucketWithRate(float64(up), up)
    }
    if down > 0 {
        bw.downLimit = ratelimit.NewBucketWithRate(float64(down), down)
    }
    return bw
}

func (p *bwlimit) Save(w io.Writer) error {
    return p.Store.Save(&limitedWriter{w, p.upLimit})
}

func (p *bwlimit) Load(r io.Reader) error {
    return p.Store.Load(&limitedReader{r, p.downLimit})
}

func (p *bwlimit) Unwrap() Store { return p.Store }
