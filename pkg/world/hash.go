// pkg/world/hash.go

package world

// hash32 mixes 32-bit input into a well-distributed 32-bit output.
func hash32(x uint32) uint32 {
    x ^= x >> 16
    x *= 0x7feb352d
    x ^= x >> 15
    x *= 0x846ca68b
    x ^= x >> 16
    return x
}

// hash2 returns a stable hash for 2D integer coordinates + seed.
func hash2(seed uint32, x, z int32) uint32 {
    h := seed
    h ^= uint32(x) * 0x9e3779b1
    h ^= uint32(z) * 0x85ebca6b
    return hash32(h)
}
