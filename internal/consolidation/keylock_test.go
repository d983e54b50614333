package consolidation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyLocksWaitHonoursContext(t *testing.T) {
	kl := newKeyLocks(4)
	unlock, err := kl.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = kl.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock2, err := kl.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock2()
}

func TestKeyLocksDropIdleSlots(t *testing.T) {
	kl := newKeyLocks(1)
	for _, k := range []string{"a", "b", "c"} {
		unlock, err := kl.Lock(context.Background(), k)
		require.NoError(t, err)
		unlock()
	}
	assert.Empty(t, kl.stripes[0].slots)
}
