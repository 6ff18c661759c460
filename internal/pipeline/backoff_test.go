package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff_DoublesUpToMax(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := &backoff{clock: clock, initial: 100 * time.Millisecond, max: 300 * time.Millisecond, current: 100 * time.Millisecond}
	ctx := context.Background()

	for _, want := range []time.Duration{200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond} {
		waited := b.current
		done := make(chan bool, 1)
		go func() { done <- b.wait(ctx) }()

		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(waited)
		assert.True(t, <-done)
		assert.Equal(t, want, b.current)
	}

	b.reset()
	assert.Equal(t, 100*time.Millisecond, b.current)
}

func TestBackoff_StopsOnCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := &backoff{clock: clock, initial: time.Second, max: time.Minute, current: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() { done <- b.wait(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	cancel()
	assert.False(t, <-done)
	assert.Equal(t, time.Second, b.current)
}
