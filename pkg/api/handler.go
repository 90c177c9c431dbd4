// pkg/api/handler.go

package api

import (
    "encoding/json"
    "net/http"
    "strconv"
    "sync/atomic"

    "AveWorld/pkg/cache"
    "AveWorld/pkg/chunk"
    "AveWorld/pkg/store"

    "github.com/go-chi/chi/v5"
    "github.com/pkg/errors"
)

var draining atomic.Bool

// SetDraining makes /health report 503 while the server shuts down.
func SetDraining(v bool) {
    draining.Store(v)
}

type apiError struct {
    Status  int    `json:"status"`
    Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
    writeJSON(w, status, map[string]apiError{"error": {status, err.Error()}})
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
    if draining.Load() {
        writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
        return
    }
    writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type handler struct {
    p *cache.ChunkProvider
}

func coordParam(r *http.Request) (chunk.Coord, error) {
    var v [3]int32
    for i, name := range []string{"x", "y", "z"} {
        n, err := strconv.ParseInt(chi.URLParam(r, name), 10, 32)
        if err != nil {
            return chunk.Coord{}, errors.Errorf("invalid %s coordinate %q", name, chi.URLParam(r, name))
        }
        v[i] = int32(n)
    }
    return chunk.Coord{X: v[0], Y: v[1], Z: v[2]}, nil
}

type chunkSummary struct {
    X     int32  `json:"x"`
    Y     int32  `json:"y"`
    Z     int32  `json:"z"`
    Solid int    `json:"solid"`
    Stamp uint64 `json:"stamp"`
}

// summarize reads a chunk that eviction may release concurrently.
func summarize(c chunk.Chunk) (*chunkSummary, bool) {
    pos := c.Pos()
    s := &chunkSummary{X: pos.X, Y: pos.Y, Z: pos.Z}
    v, ok := c.(*chunk.Voxels)
    if !ok {
        return s, !c.Disposed()
    }
    if !v.Acquire() {
        return nil, false
    }
    defer v.Release()
    s.Solid = v.Solid()
    s.Stamp = v.Stamp()
    return s, true
}

func (h *handler) getChunk(w http.ResponseWriter, r *http.Request) {
    pos, err := coordParam(r)
    if err != nil {
        writeError(w, http.StatusBadRequest, err)
        return
    }
    for i := 0; i < 3; i++ {
        if s, ok := summarize(h.p.GetChunk(pos)); ok {
            writeJSON(w, http.StatusOK, s)
            return
        }
    }
    writeError(w, http.StatusServiceUnavailable, errors.Errorf("chunk %s is being evicted", pos))
}

func (h *handler) headChunk(w http.ResponseWriter, r *http.Request) {
    pos, err := coordParam(r)
    if err != nil {
        w.WriteHeader(http.StatusBadRequest)
        return
    }
    if h.p.IsChunkAvailable(pos) {
        w.WriteHeader(http.StatusOK)
    } else {
        w.WriteHeader(http.StatusNotFound)
    }
}

func (h *handler) flush(w http.ResponseWriter, _ *http.Request) {
    scheduled := h.p.FlushCache()
    status := http.StatusOK
    if scheduled {
        status = http.StatusAccepted
    }
    writeJSON(w, status, map[string]bool{"scheduled": scheduled})
}

func (h *handler) stats(w http.ResponseWriter, _ *http.Request) {
    out := map[string]int64{
        "hot":    int64(h.p.Len()),
        "stored": h.p.Size(),
    }
    if used, ok := store.Usage(h.p.Store()); ok {
        out["stored_bytes"] = used
    }
    writeJSON(w, http.StatusOK, out)
}
