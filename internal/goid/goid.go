// Package goid extracts the current goroutine's id from the runtime stack
// header. The id is only ever used as a map key for per-goroutine
// bookkeeping, never to address a goroutine.
package goid

import "runtime"

// ID returns the current goroutine's id.
func ID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
