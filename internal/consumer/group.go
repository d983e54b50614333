package consumer

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Group runs one worker per shard and stops them together.
type Group struct {
	workers []*Worker
}

func NewGroup(workers ...*Worker) *Group {
	return &Group{workers: workers}
}

// Run blocks until every worker has stopped. Workers stop when ctx is
// cancelled; a worker failing cancels the rest.
func (g *Group) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, w := range g.workers {
		eg.Go(func() error {
			if err := w.Run(ctx); err != nil {
				return fmt.Errorf("consumer: shard %d: %w", w.Shard(), err)
			}
			return nil
		})
	}
	return eg.Wait()
}

// States reports each worker's state indexed by shard order.
func (g *Group) States() []State {
	states := make([]State, len(g.workers))
	for i, w := range g.workers {
		states[i] = w.State()
	}
	return states
}

// Close closes every worker's reader.
func (g *Group) Close() error {
	var err error
	for _, w := range g.workers {
		if cerr := w.consumer.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("consumer: close shard %d: %w", w.Shard(), cerr))
		}
	}
	return err
}
