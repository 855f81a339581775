package api

import (
	"sync/atomic"
	"time"
)

// Actions accepted in the same nanosecond still need distinct, ordered
// creation times, so the boundary hands out strictly increasing stamps.
var lastStamp atomic.Int64

func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := lastStamp.Load()
		if now <= last {
			now = last + 1
		}
		if lastStamp.CompareAndSwap(last, now) {
			return now
		}
	}
}
