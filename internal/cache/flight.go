package cache

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/joseph-ayodele/docparse/internal/entity"
)

// Flight guarantees at most one in-flight parse per fingerprint. Callers arriving
// while a parse is running share its result instead of issuing their own.
type Flight[T any] struct {
	group singleflight.Group
}

// Do runs fn unless a call for fp is already running, in which case it waits for that
// call's result. Each caller stops waiting when its own ctx is done. shared reports
// whether the result was handed to more than one caller.
func (f *Flight[T]) Do(ctx context.Context, fp entity.Fingerprint, fn func() (T, error)) (v T, shared bool, err error) {
	ch := f.group.DoChan(fp.String(), func() (interface{}, error) {
		return fn()
	})
	select {
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Shared, res.Err
		}
		v, _ := res.Val.(T)
		return v, res.Shared, nil
	}
}
