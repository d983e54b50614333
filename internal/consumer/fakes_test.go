package consumer

import (
	"context"
	"errors"
	"io"
	"sync"

	"inventoryconsolidator/internal/inventory"
	"inventoryconsolidator/internal/merge"

	kafkago "github.com/segmentio/kafka-go"
)

type fakeConsumer struct {
	msgs chan kafkago.Message

	mu         sync.Mutex
	committed  []int64
	commitErrs []error
	closed     bool
}

func newFakeConsumer(msgs ...kafkago.Message) *fakeConsumer {
	c := &fakeConsumer{msgs: make(chan kafkago.Message, len(msgs)+8)}
	for _, m := range msgs {
		c.msgs <- m
	}
	return c
}

// finish makes FetchMessage report a closed reader once the queue drains.
func (c *fakeConsumer) finish() { close(c.msgs) }

func (c *fakeConsumer) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	select {
	case m, ok := <-c.msgs:
		if !ok {
			return kafkago.Message{}, io.EOF
		}
		return m, nil
	case <-ctx.Done():
		return kafkago.Message{}, ctx.Err()
	}
}

func (c *fakeConsumer) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.commitErrs) > 0 {
		err := c.commitErrs[0]
		c.commitErrs = c.commitErrs[1:]
		return err
	}
	for _, m := range msgs {
		c.committed = append(c.committed, m.Offset)
	}
	return nil
}

func (c *fakeConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConsumer) Committed() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.committed...)
}

type deadLetter struct {
	offset int64
	reason Reason
	cause  error
}

type fakeDeadLetterer struct {
	mu      sync.Mutex
	letters []deadLetter
	failAll bool
}

func (d *fakeDeadLetterer) DeadLetter(_ context.Context, msg kafkago.Message, reason Reason, cause error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAll {
		return errors.New("broker down")
	}
	d.letters = append(d.letters, deadLetter{offset: msg.Offset, reason: reason, cause: cause})
	return nil
}

func (d *fakeDeadLetterer) Letters() []deadLetter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]deadLetter(nil), d.letters...)
}

// scriptedApplier returns errs in order before delegating to next.
type scriptedApplier struct {
	mu    sync.Mutex
	errs  []error
	calls int
	next  Applier
}

func (a *scriptedApplier) Apply(ctx context.Context, ev inventory.Event) (merge.Result, error) {
	a.mu.Lock()
	a.calls++
	if len(a.errs) > 0 {
		err := a.errs[0]
		a.errs = a.errs[1:]
		a.mu.Unlock()
		return merge.Result{}, err
	}
	a.mu.Unlock()
	return a.next.Apply(ctx, ev)
}

func (a *scriptedApplier) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// blockingApplier parks inside Apply until release is closed.
type blockingApplier struct {
	entered chan struct{}
	release chan struct{}
	next    Applier
}

func (a *blockingApplier) Apply(ctx context.Context, ev inventory.Event) (merge.Result, error) {
	close(a.entered)
	<-a.release
	if ctx.Err() != nil {
		return merge.Result{}, ctx.Err()
	}
	return a.next.Apply(ctx, ev)
}
