package sbsontestutil

import (
	"bytes"
	"math"
	"sync"

	"github.com/Schaudge/sbson"
	"github.com/grailbio/testutil/h"
)

var (
	cursorOnce = sync.Once{}
	doubleOnce = sync.Once{}
)

// RegisterCursorComparator adds a github.com/grailbio/testutil/h comparator
// for sbson.Cursor. Two cursors compare equal when they identify nodes with
// identical bytes. This function is threadsafe & idempotent.
func RegisterCursorComparator() {
	cursorOnce.Do(func() {
		h.RegisterComparator(func(c0, c1 sbson.Cursor) (int, error) {
			return bytes.Compare(c0.Raw(), c1.Raw()), nil
		})
	})
}

// RegisterDoubleComparator adds a github.com/grailbio/testutil/h comparator
// for float64 so that decoded value trees (map[string]any documents) can be
// compared with expect matchers. NaN values compare equal to each other and
// order before every other value, giving Double leaves a total order. This
// function is threadsafe & idempotent.
func RegisterDoubleComparator() {
	doubleOnce.Do(func() {
		h.RegisterComparator(func(f0, f1 float64) (int, error) {
			switch {
			case math.IsNaN(f0) && math.IsNaN(f1):
				return 0, nil
			case math.IsNaN(f0):
				return -1, nil
			case math.IsNaN(f1):
				return 1, nil
			case f0 < f1:
				return -1, nil
			case f0 > f1:
				return 1, nil
			}
			return 0, nil
		})
	})
}
