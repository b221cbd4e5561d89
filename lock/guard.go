package lock

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/mwantia/assetloader/data"
)

// guarded releases its key lock when the stream is closed.
type guarded struct {
	data.Filter

	registry *Registry
	key      string
	owner    string
	closed   atomic.Bool
}

// Guard wraps stream so that closing it releases key for the owner carried
// by ctx. Only the first Close releases; later calls are logged and ignored.
func (r *Registry) Guard(ctx context.Context, key string, stream data.Stream) data.Stream {
	owner, _ := OwnerFrom(ctx)

	return &guarded{
		Filter: data.Filter{
			Source: stream,
		},
		registry: r,
		key:      key,
		owner:    owner,
	}
}

func (g *guarded) Close() error {
	if !g.closed.CompareAndSwap(false, true) {
		g.registry.logger.Warn("Close: stream for %s closed twice, lock already released", g.key)
		return nil
	}

	err := g.Source.Close()
	if rerr := g.registry.release(g.key, g.owner); rerr != nil {
		return errors.Join(err, rerr)
	}

	return err
}
