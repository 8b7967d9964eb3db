package shutdownqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetQueue clears the global queue after each test.
func resetQueue(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		q.mu.Lock()
		q.entries = nil
		q.closed = false
		q.mu.Unlock()
	})
}

func noop(context.Context) error { return nil }

//nolint:paralleltest
func TestLIFOOrder(t *testing.T) {
	resetQueue(t)

	var order []string

	for _, name := range []string{"db", "redis", "amqp", "http"} {
		AddNamed(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	Add(nil)

	require.NoError(t, Shutdown(t.Context()))
	assert.Equal(t, []string{"http", "amqp", "redis", "db"}, order)
}

//nolint:paralleltest
func TestPanicIsRecoveredAndDrainContinues(t *testing.T) {
	resetQueue(t)

	var ranAfterPanic atomic.Bool

	AddNamed("after", func(context.Context) error {
		ranAfterPanic.Store(true)
		return nil
	})
	Add(func(context.Context) error { panic("boom") })

	err := Shutdown(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in shutdown task: boom")
	assert.True(t, ranAfterPanic.Load())
}

//nolint:paralleltest
func TestNamedTaskErrorsCarryName(t *testing.T) {
	resetQueue(t)

	errClose := errors.New("connection reset")
	errAlpha := errors.New("alpha")

	Add(func(context.Context) error { return errAlpha })
	AddNamed("amqp connection", func(context.Context) error { return errClose })
	AddNamed("redis", func(context.Context) error { panic("nil client") })

	err := Shutdown(t.Context())
	require.ErrorIs(t, err, errClose)
	require.ErrorIs(t, err, errAlpha)

	s := err.Error()
	assert.Contains(t, s, "amqp connection: connection reset")
	assert.Contains(t, s, "panic in shutdown task redis: nil client")
}

//nolint:paralleltest
func TestCancelStopsDrain(t *testing.T) {
	resetQueue(t)

	var ranB atomic.Bool

	entered := make(chan struct{})

	AddNamed("b", func(context.Context) error {
		ranB.Store(true)
		return nil
	})
	AddNamed("gate", func(ctx context.Context) error {
		close(entered)
		<-ctx.Done()

		return nil
	})

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)

	go func() { errCh <- Shutdown(ctx) }()

	<-entered
	cancel()

	err := <-errCh
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, ranB.Load())
}

//nolint:paralleltest
func TestRunsOnceAndIgnoresLateTasks(t *testing.T) {
	resetQueue(t)

	var count atomic.Int32

	started := make(chan struct{})
	unblock := make(chan struct{})

	Add(func(context.Context) error {
		count.Add(1)
		return nil
	})
	Add(func(context.Context) error {
		close(started)
		<-unblock

		return nil
	})

	done := make(chan error, 1)

	go func() { done <- Shutdown(context.Background()) }()

	<-started

	var late atomic.Bool
	Add(func(context.Context) error {
		late.Store(true)
		return nil
	})
	close(unblock)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not finish")
	}

	require.NoError(t, Shutdown(context.Background()))
	assert.Equal(t, int32(1), count.Load())
	assert.False(t, late.Load())
}

//nolint:paralleltest
func TestShutdownWithNoTasksIsNil(t *testing.T) {
	resetQueue(t)

	require.NoError(t, Shutdown(t.Context()))
	require.NoError(t, Shutdown(t.Context()))

	AddNamed("noop", noop)
	assert.Empty(t, q.entries)
}
