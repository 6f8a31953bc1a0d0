package pool

import (
	"context"
	"testing"
	"time"

	"github.com/shhac/warren/internal/errs"
	"github.com/shhac/warren/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/credentials/insecure"
)

// Channel creation is lazy in gRPC, so pools in these tests point at an
// unreachable address without ever dialing it.
func newTestPool(t *testing.T, maxChannels int32) *ChannelPool {
	t.Helper()
	p, err := New(Config{
		Address:     "127.0.0.1:1",
		Credentials: insecure.NewCredentials(),
		MaxChannels: maxChannels,
		Logger:      logging.NewNopLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestAcquireReleaseReusesChannel(t *testing.T) {
	p := newTestPool(t, 4)
	ctx := context.Background()

	ch, err := p.Acquire(ctx)
	require.NoError(t, err)
	first := ch.Conn()
	p.Release(ch, true)

	ch2, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, first, ch2.Conn())
	p.Release(ch2, true)

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.CreatedChannels)
	assert.Equal(t, int32(1), stats.TotalChannels)
}

func TestReleaseInvalidDestroysChannel(t *testing.T) {
	p := newTestPool(t, 4)
	ctx := context.Background()

	ch, err := p.Acquire(ctx)
	require.NoError(t, err)
	broken := ch.Conn()
	p.Release(ch, false)

	// The broken channel must never be reoffered.
	ch2, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.NotSame(t, broken, ch2.Conn())
	p.Release(ch2, true)

	stats := p.Stats()
	assert.Equal(t, int64(2), stats.CreatedChannels)
	assert.Equal(t, int64(1), stats.DestroyedChannels)
}

func TestSequentialUseNeverGrowsPastBound(t *testing.T) {
	p := newTestPool(t, 2)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		ch, err := p.Acquire(ctx)
		require.NoError(t, err)
		p.Release(ch, true)
	}

	stats := p.Stats()
	assert.LessOrEqual(t, stats.TotalChannels, int32(2))
	assert.Equal(t, int64(1), stats.CreatedChannels)
}

func TestAcquireSuspendsAtCapacity(t *testing.T) {
	p := newTestPool(t, 1)
	ctx := context.Background()

	held, err := p.Acquire(ctx)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(waitCtx)
	require.Error(t, err)

	// Releasing frees the slot for the next caller.
	p.Release(held, true)
	ch, err := p.Acquire(ctx)
	require.NoError(t, err)
	p.Release(ch, true)
}

func TestConcurrentAcquireRespectsBound(t *testing.T) {
	p := newTestPool(t, 3)
	ctx := context.Background()

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 10; j++ {
				ch, err := p.Acquire(ctx)
				if err != nil {
					t.Error(err)
					return
				}
				p.Release(ch, j%5 != 0)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	stats := p.Stats()
	assert.LessOrEqual(t, stats.TotalChannels, int32(3))
}

func TestAcquireAfterClose(t *testing.T) {
	p := newTestPool(t, 1)
	p.Close()

	_, err := p.Acquire(context.Background())
	assert.ErrorIs(t, err, errs.ErrPoolClosed)
}

func TestDoubleReleaseIsSafe(t *testing.T) {
	p := newTestPool(t, 1)
	ch, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(ch, true)
	p.Release(ch, false) // second release is a no-op
	p.Release(nil, true)

	stats := p.Stats()
	assert.Equal(t, int64(0), stats.DestroyedChannels)
}

func TestBreakerEnabledPoolStillServes(t *testing.T) {
	p, err := New(Config{
		Address:       "127.0.0.1:1",
		Credentials:   insecure.NewCredentials(),
		MaxChannels:   1,
		EnableBreaker: true,
		Logger:        logging.NewNopLogger(),
	})
	require.NoError(t, err)
	defer p.Close()

	ch, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(ch, true)
}
