// Package pool provides object pooling for gtrandb to reduce allocations on
// the hot storage path.
//
// Object pooling reuses allocated objects instead of creating new ones,
// reducing GC pressure and improving throughput for high-frequency
// operations — the same sharded-arena concern SPEC_FULL.md §5 describes for
// value stores, row arenas, and MVCC node pools, here expressed as
// general-purpose typed pools. pkg/storage uses the property-map pool for
// GetAllVP/GetAllEP results; the byte-buffer and uint32-slice pools have no
// caller in this module.
//
// Usage:
//
//	buf := pool.GetByteBuffer()
//	defer pool.PutByteBuffer(buf)
//
//	buf = append(buf, payload...)
package pool

import (
	"sync"
)

// Config configures object pooling behavior.
type Config struct {
	// Enabled controls whether pooling is active.
	Enabled bool

	// MaxSize is the largest uint32-slice capacity and property-map length
	// that Put* returns to its pool; larger ones are dropped. Byte buffers
	// use a fixed 1MB capacity limit instead.
	MaxSize int
}

var globalConfig = Config{
	Enabled: true,
	MaxSize: 1000,
}

// Configure sets global pool configuration. Should be called early during
// initialization, before any Get* call.
func Configure(cfg Config) {
	globalConfig = cfg
	initPools()
}

// initPools reinitializes all pools with their New functions.
func initPools() {
	byteBufferPool = sync.Pool{
		New: func() any {
			return make([]byte, 0, 1024)
		},
	}
	uint32SlicePool = sync.Pool{
		New: func() any {
			return make([]uint32, 0, 64)
		},
	}
	propertyMapPool = sync.Pool{
		New: func() any {
			return make(map[uint32][]byte, 8)
		},
	}
}

// IsEnabled returns whether pooling is enabled.
func IsEnabled() bool {
	return globalConfig.Enabled
}

// =============================================================================
// Byte Buffer Pool (general byte scratch space)
// =============================================================================

var byteBufferPool = sync.Pool{
	New: func() any {
		return make([]byte, 0, 1024)
	},
}

// GetByteBuffer returns a zero-length byte buffer from the pool.
func GetByteBuffer() []byte {
	if !globalConfig.Enabled {
		return make([]byte, 0, 1024)
	}
	return byteBufferPool.Get().([]byte)[:0]
}

// PutByteBuffer returns a byte buffer to the pool.
func PutByteBuffer(buf []byte) {
	if !globalConfig.Enabled {
		return
	}
	if cap(buf) > 1024*1024 { // don't pool huge buffers (>1MB)
		return
	}
	byteBufferPool.Put(buf[:0])
}

// =============================================================================
// Uint32 Slice Pool (VId/label batches)
// =============================================================================

var uint32SlicePool = sync.Pool{
	New: func() any {
		return make([]uint32, 0, 64)
	},
}

// GetUint32Slice returns a zero-length uint32 slice from the pool, used for
// batches of VIds or labels (both are uint32-based, §3).
func GetUint32Slice() []uint32 {
	if !globalConfig.Enabled {
		return make([]uint32, 0, 64)
	}
	return uint32SlicePool.Get().([]uint32)[:0]
}

// PutUint32Slice returns a uint32 slice to the pool.
func PutUint32Slice(s []uint32) {
	if !globalConfig.Enabled {
		return
	}
	if cap(s) > globalConfig.MaxSize {
		return
	}
	uint32SlicePool.Put(s[:0])
}

// =============================================================================
// Property Map Pool (GetAllVP/GetAllEP result scratch)
// =============================================================================

var propertyMapPool = sync.Pool{
	New: func() any {
		return make(map[uint32][]byte, 8)
	},
}

// GetPropertyMap returns an empty property map from the pool.
func GetPropertyMap() map[uint32][]byte {
	if !globalConfig.Enabled {
		return make(map[uint32][]byte, 8)
	}
	m := propertyMapPool.Get().(map[uint32][]byte)
	for k := range m {
		delete(m, k)
	}
	return m
}

// PutPropertyMap returns a property map to the pool.
func PutPropertyMap(m map[uint32][]byte) {
	if !globalConfig.Enabled || m == nil {
		return
	}
	if len(m) > globalConfig.MaxSize {
		return
	}
	for k := range m {
		delete(m, k)
	}
	propertyMapPool.Put(m)
}
