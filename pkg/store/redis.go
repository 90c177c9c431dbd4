// pkg/store/redis.go

package store

import (
    "context"
    "errors"
    "fmt"
    "io"
    "math/rand"
    "net"
    "os"
    "sort"
    "strconv"
    "strings"
    "time"

    "AveWorld/pkg/chunk"
    "AveWorld/pkg/compress"
    "AveWorld/pkg/utils"

    "github.com/redis/go-redis/v9"
)

const chunkIndex = "chunks"

// batch size for MGET
const redisBatch = 256

// redisStore keeps one key per chunk plus a set indexing all of them.
type redisStore struct {
    conf       *Config
    compressor compress.Compressor
    rdb        *redis.Client
    addr       string
    prefix     string
    scripts    scripts
}

func init() {
    Register("redis", newRedisStore)
    redis.SetLogger(utils.GetLogger("redis"))
}

// newRedisStore return a chunk store using Redis.
func newRedisStore(addr string, conf *Config) (Store, error) {
    url := "redis://" + addr
    opt, err := redis.ParseURL(url)
    if err != nil {
        return nil, fmt.Errorf("parse %s: %s", url, err)
    }
    comp, err := compressorFor(conf.Compression)
    if err != nil {
        return nil, err
    }

    var rdb *redis.Client
    if strings.Contains(opt.Addr, ",") {
        var fopt redis.FailoverOptions
        ps := strings.Split(opt.Addr, ",")
        fopt.MasterName = ps[0]
        fopt.SentinelAddrs = ps[1:]

        defaultSentinelPort := "26379"
        for i, saddr := range fopt.SentinelAddrs {
            h, p, err := net.SplitHostPort(saddr)
            if err != nil {
                fopt.SentinelAddrs[i] = net.JoinHostPort(saddr, defaultSentinelPort)
            } else if p == "" {
                fopt.SentinelAddrs[i] = net.JoinHostPort(h, defaultSentinelPort)
            }
        }

        fopt.Username = opt.Username
        fopt.Password = opt.Password
        if fopt.Password == "" && os.Getenv("REDIS_PASSWORD") != "" {
            fopt.Password = os.Getenv("REDIS_PASSWORD")
        }
        fopt.SentinelPassword = os.Getenv("SENTINEL_PASSWORD")
        fopt.DB = opt.DB
        fopt.TLSConfig = opt.TLSConfig
        fopt.MaxRetries = conf.Retries
        fopt.MinRetryBackoff = time.Millisecond * 100
        fopt.MaxRetryBackoff = time.Minute * 1
        fopt.ReadTimeout = time.Second * 30
        fopt.WriteTimeout = time.Second * 5
        rdb = redis.NewFailoverClient(&fopt)
    } else {
        if opt.Password == "" && os.Getenv("REDIS_PASSWORD") != "" {
            opt.Password = os.Getenv("REDIS_PASSWORD")
        }
        opt.MaxRetries = conf.Retries
        opt.MinRetryBackoff = time.Millisecond * 100
        opt.MaxRetryBackoff = time.Minute * 1
        opt.ReadTimeout = time.Second * 30
        opt.WriteTimeout = time.Second * 5
        rdb = redis.NewClient(opt)
    }

    return &redisStore{
        conf:       conf,
        compressor: comp,
        rdb:        rdb,
        addr:       opt.Addr,
        prefix:     conf.Prefix,
        scripts:    scripts{sha: make(map[string]string)},
    }, nil
}

func (rs *redisStore) Name() string {
    return "redis://" + rs.addr
}

func member(pos chunk.Coord) string {
    return fmt.Sprintf("%d:%d:%d", pos.X, pos.Y, pos.Z)
}

func parseMember(m string) (chunk.Coord, error) {
    ps := strings.Split(m, ":")
    if len(ps) != 3 {
        return chunk.Coord{}, fmt.Errorf("invalid chunk member %q", m)
    }
    var v [3]int32
    for i, p := range ps {
        n, err := strconv.ParseInt(p, 10, 32)
        if err != nil {
            return chunk.Coord{}, fmt.Errorf("invalid chunk member %q: %s", m, err)
        }
        v[i] = int32(n)
    }
    return chunk.Coord{X: v[0], Y: v[1], Z: v[2]}, nil
}

func (rs *redisStore) chunkKey(pos chunk.Coord) string {
    return rs.prefix + "c:" + member(pos)
}

func (rs *redisStore) indexKey() string {
    return rs.prefix + chunkIndex
}

func (rs *redisStore) Get(pos chunk.Coord) (chunk.Chunk, error) {
    rec, err := rs.rdb.Get(context.Background(), rs.chunkKey(pos)).Bytes()
    if errors.Is(err, redis.Nil) {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, fmt.Errorf("get chunk %s: %w", pos, err)
    }
    return decodeChunk(rs.conf, rs.compressor, pos, rec)
}

func (rs *redisStore) Put(c chunk.Chunk) error {
    rec, err := encodeChunk(rs.compressor, c)
    if err != nil {
        return err
    }
    pos := c.Pos()
    return rs.retry(func(ctx context.Context) error {
        _, err := rs.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
            pipe.Set(ctx, rs.chunkKey(pos), rec, 0)
            pipe.SAdd(ctx, rs.indexKey(), member(pos))
            return nil
        })
        return err
    })
}

func (rs *redisStore) ApproximateSize() int64 {
    n, err := rs.rdb.SCard(context.Background(), rs.indexKey()).Result()
    if err != nil {
        logger.Warnf("count chunks in %s: %s", rs.Name(), err)
        return 0
    }
    return n
}

func (rs *redisStore) Save(w io.Writer) error {
    ctx := context.Background()
    members, err := rs.rdb.SMembers(ctx, rs.indexKey()).Result()
    if err != nil {
        return fmt.Errorf("list chunks: %w", err)
    }
    sort.Strings(members)

    var entries []entry
    for i := 0; i < len(members); i += redisBatch {
        batch := members[i:utils.Min(i+redisBatch, len(members))]
        keys := make([]string, len(batch))
        for j, m := range batch {
            keys[j] = rs.prefix + "c:" + m
        }
        vals, err := rs.rdb.MGet(ctx, keys...).Result()
        if err != nil {
            return fmt.Errorf("read chunks: %w", err)
        }
        for j, v := range vals {
            s, ok := v.(string)
            if !ok {
                // indexed but gone, e.g. expired by an operator
                logger.Warnf("chunk %s is indexed but missing in %s", batch[j], rs.Name())
                continue
            }
            pos, err := parseMember(batch[j])
            if err != nil {
                return err
            }
            entries = append(entries, entry{pos, []byte(s)})
        }
    }

    sw, err := newSnapshotWriter(w, newHeader(rs.Name(), rs.conf.Compression, len(entries)))
    if err != nil {
        return err
    }
    for _, e := range entries {
        if err = sw.add(e.pos, e.rec); err != nil {
            return err
        }
    }
    return sw.finish()
}

// Load writes every chunk of the snapshot into redis in one MULTI/EXEC,
// so a failure applies none of them. Chunks already in redis but absent
// from the snapshot are kept.
func (rs *redisStore) Load(r io.Reader) error {
    hdr, records, err := readSnapshot(r, rs.conf.Compression)
    if err != nil {
        return err
    }
    if len(records) > 0 {
        members := make([]interface{}, 0, len(records))
        for pos := range records {
            members = append(members, member(pos))
        }
        err = rs.retry(func(ctx context.Context) error {
            _, err := rs.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
                for pos, rec := range records {
                    pipe.Set(ctx, rs.chunkKey(pos), rec, 0)
                }
                pipe.SAdd(ctx, rs.indexKey(), members...)
                return nil
            })
            return err
        })
        if err != nil {
            return fmt.Errorf("restore snapshot %s: %w", hdr.ID, err)
        }
    }
    logger.Infof("restored %d chunks from snapshot %s into %s", len(records), hdr.ID, rs.Name())
    return nil
}

func (rs *redisStore) retry(f func(ctx context.Context) error) error {
    ctx := context.Background()
    var err error
    for i := 0; i < 50; i++ {
        err = f(ctx)
        if shouldRetry(err) {
            time.Sleep(time.Microsecond * 100 * time.Duration(rand.Int()%(i+1)))
            continue
        }
        return err
    }
    return err
}

type timeoutError interface {
    Timeout() bool
}

func shouldRetry(err error) bool {
    switch {
    case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
        return false
    case errors.Is(err, redis.TxFailedErr):
        return true
    case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
        return true
    }

    if v, ok := err.(timeoutError); ok && v.Timeout() {
        return true
    }

    s := err.Error()
    if s == "ERR max number of clients reached" {
        return true
    }
    ps := strings.SplitN(s, " ", 3)
    switch ps[0] {
    case "LOADING", "READONLY", "CLUSTERDOWN", "TRYAGAIN", "MOVED", "ASK":
        return true
    case "ERR":
        if len(ps) > 1 {
            switch ps[1] {
            case "DISABLE", "NOWRITE", "NOREAD":
                return true
            }
        }
    }
    return false
}

// Close releases the redis connections.
func (rs *redisStore) Close() error {
    return rs.rdb.Close()
}
