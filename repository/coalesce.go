package repository

import (
	"context"

	"github.com/wolfeidau/maven-repo/metadata"
	"golang.org/x/sync/singleflight"
)

// updateFunc regenerates one metadata document. The context passed to it is
// detached from the caller so that one caller giving up does not abandon a
// half-finished update other callers are waiting on.
type updateFunc func(ctx context.Context) (*metadata.Metadata, error)

// coalescer deduplicates concurrent updates of the same metadata path. It
// uses DoChan so each caller can respect its own context deadline without
// cancelling the in-flight update for others.
type coalescer struct {
	group singleflight.Group
}

// Do runs fn once for all concurrent callers with the same key. It returns
// the document, whether it was shared with another caller, and any error.
//
// If the caller's context expires before the update completes, Do returns
// the context error but the in-flight update continues for other waiters.
func (c *coalescer) Do(ctx context.Context, key string, fn updateFunc) (*metadata.Metadata, bool, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Shared, res.Err
		}
		return res.Val.(*metadata.Metadata), res.Shared, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}
