// pkg/store/lua_scripts.go

package store

// KEYS[1] lease key, ARGV[1] owner, ARGV[2] ttl in ms.
// Takes a free lease or extends one already held by the owner.
const scriptLock = `
local cur = redis.call('GET', KEYS[1])
if not cur or cur == ARGV[1] then
    redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
    return 1
end
return 0
`

// KEYS[1] lease key, ARGV[1] owner
const scriptUnlock = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`
