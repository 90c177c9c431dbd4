// pkg/compress/compress.go

package compress

import (
    "bytes"
    "fmt"
    "io"
    "strings"

    "github.com/DataDog/zstd"
    "github.com/hungys/go-lz4"
    "github.com/klauspost/compress/gzip"
)

// ZSTD_LEVEL compression level used by ZSTD
const ZSTD_LEVEL = 1

// Compressor compresses and decompresses whole buffers.
type Compressor interface {
    Name() string
    CompressBound(int) int
    Compress(dst, src []byte) (int, error)
    // Decompress expects dst to be exactly as large as the original data.
    Decompress(dst, src []byte) (int, error)
}

// NewCompressor returns nil for an unknown algorithm.
func NewCompressor(algr string) Compressor {
    switch strings.ToLower(algr) {
    case "zstd":
        return ZStandard{ZSTD_LEVEL}
    case "lz4":
        return LZ4{}
    case "gzip":
        return Gzip{}
    case "none", "":
        return noOp{}
    }
    return nil
}

type noOp struct{}

func (n noOp) Name() string            { return "Noop" }
func (n noOp) CompressBound(l int) int { return l }
func (n noOp) Compress(dst, src []byte) (int, error) {
    if len(dst) < len(src) {
        return 0, fmt.Errorf("buffer too short: %d < %d", len(dst), len(src))
    }
    return copy(dst, src), nil
}
func (n noOp) Decompress(dst, src []byte) (int, error) {
    if len(dst) < len(src) {
        return 0, fmt.Errorf("buffer too short: %d < %d", len(dst), len(src))
    }
    return copy(dst, src), nil
}

type ZStandard struct {
    level int
}

func (n ZStandard) Name() string            { return "Zstd" }
func (n ZStandard) CompressBound(l int) int { return zstd.CompressBound(l) }
func (n ZStandard) Compress(dst, src []byte) (int, error) {
    d, err := zstd.CompressLevel(dst, src, n.level)
    if err != nil {
        return 0, err
    }
    if len(d) > 0 && len(dst) > 0 && &d[0] != &dst[0] {
        return 0, fmt.Errorf("buffer too short: %d < %d", cap(dst), cap(d))
    }
    return len(d), nil
}
func (n ZStandard) Decompress(dst, src []byte) (int, error) {
    d, err := zstd.Decompress(dst, src)
    if err != nil {
        return 0, err
    }
    if len(d) > 0 && len(dst) > 0 && &d[0] != &dst[0] {
        return 0, fmt.Errorf("buffer too short: %d < %d", len(dst), len(d))
    }
    return len(d), nil
}

type LZ4 struct{}

func (l LZ4) Name() string               { return "LZ4" }
func (l LZ4) CompressBound(size int) int { return lz4.CompressBound(size) }
func (l LZ4) Compress(dst, src []byte) (int, error) {
    return lz4.CompressDefault(src, dst)
}
func (l LZ4) Decompress(dst, src []byte) (int, error) {
    return lz4.DecompressSafe(src, dst)
}

// Gzip matches the gzip framing chunk saves used historically.
type Gzip struct{}

func (g Gzip) Name() string { return "Gzip" }

// CompressBound is deflate's worst case for stored blocks plus the gzip framing.
func (g Gzip) CompressBound(l int) int { return l + l/16000*5 + 5 + 64 }
func (g Gzip) Compress(dst, src []byte) (int, error) {
    var buf bytes.Buffer
    w, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
    if err != nil {
        return 0, err
    }
    if _, err = w.Write(src); err != nil {
        return 0, err
    }
    if err = w.Close(); err != nil {
        return 0, err
    }
    if buf.Len() > len(dst) {
        return 0, fmt.Errorf("buffer too short: %d < %d", len(dst), buf.Len())
    }
    return copy(dst, buf.Bytes()), nil
}
func (g Gzip) Decompress(dst, src []byte) (int, error) {
    r, err := gzip.NewReader(bytes.NewReader(src))
    if err != nil {
        return 0, err
    }
    defer r.Close()
    n, err := io.ReadFull(r, dst)
    if err == io.ErrUnexpectedEOF {
        return n, nil
    }
    return n, err
}
