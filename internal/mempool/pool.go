// Package mempool recycles scratch buffers used on the matching and filtering hot paths.
package mempool

import (
	"sync"
)

// sizedPool keeps one sync.Pool per size class.
type sizedPool[T any] struct {
	classes sync.Map // key: size class (int), value: *sync.Pool
}

var (
	float64Pool sizedPool[float64]
	float32Pool sizedPool[float32]
)

// sizeClass rounds n up to a multiple of 1024 to reduce churn.
func sizeClass(n int) int {
	if n <= 1024 {
		return 1024
	}
	const step = 1024
	r := (n + step - 1) / step
	return r * step
}

func (sp *sizedPool[T]) pool(cls int) *sync.Pool {
	pAny, _ := sp.classes.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]T, cls) }})
	return pAny.(*sync.Pool)
}

func (sp *sizedPool[T]) get(n int) []T {
	cls := sizeClass(n)
	buf, ok := sp.pool(cls).Get().([]T)
	if !ok || cap(buf) < cls {
		buf = make([]T, cls)
	}
	return buf[:n]
}

func (sp *sizedPool[T]) put(buf []T) {
	if buf == nil {
		return
	}
	// Buffers are filed under the class their capacity fills completely.
	cls := sizeClass(cap(buf))
	if cls != cap(buf) {
		return
	}
	sp.pool(cls).Put(buf[:cap(buf)]) //nolint:staticcheck
}

// GetFloat64 returns a buffer of length n. Contents are not zeroed.
// The caller must return it via PutFloat64 when done.
func GetFloat64(n int) []float64 { return float64Pool.get(n) }

// PutFloat64 returns a buffer to the pool. It is safe to pass a nil slice.
func PutFloat64(buf []float64) { float64Pool.put(buf) }

// GetFloat32 returns a zeroed buffer of length n.
func GetFloat32(n int) []float32 {
	buf := float32Pool.get(n)
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

// PutFloat32 returns a buffer to the pool. It is safe to pass a nil slice.
func PutFloat32(buf []float32) { float32Pool.put(buf) }
