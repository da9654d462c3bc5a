package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatch(t *testing.T) {
	l := NewLatch()
	assert.Equal(t, LatchPending, l.State())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.DeadlineExceeded)

	var wg sync.WaitGroup
	released := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Wait(context.Background()) == nil {
				released <- struct{}{}
			}
		}()
	}

	l.Open()
	l.Open()
	wg.Wait()
	assert.Len(t, released, 3)
	assert.Equal(t, LatchReady, l.State())
	require.NoError(t, l.Wait(context.Background()))
	assert.Equal(t, "ready", l.State().String())
}

func TestLatchOpenIgnoresDoneContext(t *testing.T) {
	l := NewLatch()
	l.Open()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(ctx))
	}
}
