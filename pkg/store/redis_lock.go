// pkg/store/redis_lock.go

package store

import (
    "context"
    "strings"
    "sync"
    "time"

    "github.com/pkg/errors"
)

var ErrLocked = errors.New("store is locked by another owner")

// Locker is implemented by stores shared between processes. A lease keeps
// two servers from evicting into the same keys.
type Locker interface {
    // Lock takes the lease for owner, or extends it when owner holds it.
    Lock(owner string, ttl time.Duration) error
    Unlock(owner string) error
}

// LockerOf finds a Locker under the wrappers of s.
func LockerOf(s Store) (Locker, bool) {
    for s != nil {
        if l, ok := s.(Locker); ok {
            return l, true
        }
        u, ok := s.(unwrapper)
        if !ok {
            break
        }
        s = u.Unwrap()
    }
    return nil, false
}

type scripts struct {
    sync.Mutex
    sha map[string]string
}

func (rs *redisStore) leaseKey() string {
    return rs.prefix + "lease"
}

// eval runs a cached script, loading it again when redis lost it.
func (rs *redisStore) eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
    rs.scripts.Lock()
    sha := rs.scripts.sha[script]
    rs.scripts.Unlock()
    if sha != "" {
        res, err := rs.rdb.EvalSha(ctx, sha, keys, args...).Result()
        if err == nil || !strings.Contains(err.Error(), "NOSCRIPT") {
            return res, err
        }
        logger.Infof("script %s is gone from %s, load it again", sha, rs.Name())
    }
    sha, err := rs.rdb.ScriptLoad(ctx, script).Result()
    if err != nil {
        return nil, errors.Wrap(err, "load script")
    }
    rs.scripts.Lock()
    rs.scripts.sha[script] = sha
    rs.scripts.Unlock()
    return rs.rdb.EvalSha(ctx, sha, keys, args...).Result()
}

func (rs *redisStore) Lock(owner string, ttl time.Duration) error {
    var got int64
    err := rs.retry(func(ctx context.Context) error {
        res, err := rs.eval(ctx, scriptLock, []string{rs.leaseKey()}, owner, ttl.Milliseconds())
        if err != nil {
            return err
        }
        got, _ = res.(int64)
        return nil
    })
    if err != nil {
        return errors.Wrapf(err, "lock %s", rs.Name())
    }
    if got != 1 {
        holder, _ := rs.rdb.Get(context.Background(), rs.leaseKey()).Result()
        return errors.Wrapf(ErrLocked, "held by %s", holder)
    }
    return nil
}

func (rs *redisStore) Unlock(owner string) error {
    return rs.retry(func(ctx context.Context) error {
        _, err := rs.eval(ctx, scriptUnlock, []string{rs.leaseKey()}, owner)
        return err
    })
}
