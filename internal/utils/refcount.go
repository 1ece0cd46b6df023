package utils

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// RefCount is a strong reference counter. The zero value holds no references; Init hands the
// creator its first one.
type RefCount struct {
	count int32
}

func (r *RefCount) Init() {
	atomic.StoreInt32(&r.count, 1)
}

// Retain adds a reference. Retaining an object whose last reference is already gone is a
// programmer error and panics.
func (r *RefCount) Retain() {
	for {
		current := atomic.LoadInt32(&r.count)
		if current <= 0 {
			panic(errors.AssertionFailedf("attempted to retain an object with no live references"))
		}

		if atomic.CompareAndSwapInt32(&r.count, current, current+1) {
			return
		}
	}
}

// Release drops a reference and reports whether it was the last one
func (r *RefCount) Release() bool {
	newCount := atomic.AddInt32(&r.count, -1)
	if newCount < 0 {
		panic(errors.AssertionFailedf("released an object more times than it was retained"))
	}

	return newCount == 0
}

// Count is the number of live references
func (r *RefCount) Count() int {
	return int(atomic.LoadInt32(&r.count))
}
