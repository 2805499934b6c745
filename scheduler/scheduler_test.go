package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/indigo-web/loom/config"
	"github.com/indigo-web/loom/http/status"
	"github.com/indigo-web/loom/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type closer struct {
	closed atomic.Bool
}

func (c *closer) Close() error {
	c.closed.Store(true)
	return nil
}

func getScheduler(workers int) *Scheduler {
	cfg := config.Default().Scheduler
	cfg.Workers = workers
	cfg.DrainTimeout = time.Second

	return New(cfg, nil, nil)
}

func TestScheduler(t *testing.T) {
	t.Run("every task once", func(t *testing.T) {
		s := getScheduler(8)
		s.Start()

		const n = 1000
		var (
			executed [n]atomic.Int32
			wg       sync.WaitGroup
		)

		releases := make([]func(), n)
		for i := range n {
			release, err := s.Acquire(new(closer))
			require.NoError(t, err)
			releases[i] = release

			wg.Add(1)
			require.NoError(t, s.Post(func() {
				defer wg.Done()
				executed[i].Add(1)
				releases[i]()
			}))
		}

		wg.Wait()
		for i := range executed {
			require.Equal(t, int32(1), executed[i].Load(), "task %d", i)
		}

		require.Zero(t, s.ActiveUsers())
		require.NoError(t, s.Shutdown(context.Background()))
	})

	t.Run("run waits", func(t *testing.T) {
		s := getScheduler(1)
		s.Start()

		var done bool
		require.NoError(t, s.Run(context.Background(), func() {
			time.Sleep(10 * time.Millisecond)
			done = true
		}))
		require.True(t, done)
		require.NoError(t, s.Shutdown(context.Background()))
	})

	t.Run("run withdraws", func(t *testing.T) {
		s := getScheduler(1)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var ran atomic.Bool
		err := s.Run(ctx, func() {
			ran.Store(true)
		})
		require.ErrorIs(t, err, context.Canceled)

		s.Start()
		require.NoError(t, s.Run(context.Background(), func() {}))
		require.False(t, ran.Load())
		require.NoError(t, s.Shutdown(context.Background()))
	})

	t.Run("panicking task", func(t *testing.T) {
		s := getScheduler(1)
		s.Start()

		require.NoError(t, s.Run(context.Background(), func() {
			panic("oops")
		}))

		var ran bool
		require.NoError(t, s.Run(context.Background(), func() {
			ran = true
		}))
		require.True(t, ran)
		require.NoError(t, s.Shutdown(context.Background()))
	})

	t.Run("shutdown runs queued tasks", func(t *testing.T) {
		s := getScheduler(4)
		s.Start()

		const n = 1000
		var executed atomic.Int32
		for range n {
			require.NoError(t, s.Post(func() {
				time.Sleep(10 * time.Microsecond)
				executed.Add(1)
			}))
		}

		require.NoError(t, s.Shutdown(context.Background()))
		require.Equal(t, int32(n), executed.Load())
	})

	t.Run("concurrent posts during shutdown", func(t *testing.T) {
		s := getScheduler(2)
		s.Start()

		var (
			accepted, executed atomic.Int32
			wg                 sync.WaitGroup
		)

		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 200 {
					if s.Post(func() { executed.Add(1) }) == nil {
						accepted.Add(1)
					}
				}
			}()
		}

		require.NoError(t, s.Shutdown(context.Background()))
		wg.Wait()
		require.Equal(t, accepted.Load(), executed.Load())
	})

	t.Run("post after shutdown", func(t *testing.T) {
		s := getScheduler(1)
		s.Start()
		require.NoError(t, s.Shutdown(context.Background()))

		require.ErrorIs(t, s.Post(func() {}), status.ErrShutdown)
		require.ErrorIs(t, s.Run(context.Background(), func() {}), status.ErrShutdown)
	})
}

func TestAcquire(t *testing.T) {
	s := getScheduler(1)

	first, err := s.Acquire(new(closer))
	require.NoError(t, err)
	second, err := s.Acquire(new(closer))
	require.NoError(t, err)
	require.Equal(t, int64(2), s.ActiveUsers())

	first()
	first()
	require.Equal(t, int64(1), s.ActiveUsers())
	second()
	require.Zero(t, s.ActiveUsers())
}

func TestShutdown(t *testing.T) {
	t.Run("drain", func(t *testing.T) {
		s := getScheduler(2)
		s.Start()

		c := new(closer)
		release, err := s.Acquire(c)
		require.NoError(t, err)

		var draining atomic.Bool
		go func() {
			time.Sleep(50 * time.Millisecond)
			draining.Store(s.Draining())
			release()
		}()

		require.NoError(t, s.Shutdown(context.Background()))
		require.True(t, draining.Load())
		require.False(t, c.closed.Load())
		require.Zero(t, s.ActiveUsers())
	})

	t.Run("refuse connections", func(t *testing.T) {
		s := getScheduler(1)
		require.NoError(t, s.Shutdown(context.Background()))

		_, err := s.Acquire(new(closer))
		require.ErrorIs(t, err, status.ErrShutdown)
	})

	t.Run("drain timeout", func(t *testing.T) {
		cfg := config.Default().Scheduler
		cfg.Workers = 1
		cfg.DrainTimeout = 20 * time.Millisecond
		s := New(cfg, nil, nil)
		s.Start()

		stuck, idle := new(closer), new(closer)
		_, err := s.Acquire(stuck)
		require.NoError(t, err)
		release, err := s.Acquire(idle)
		require.NoError(t, err)
		release()

		err = s.Shutdown(context.Background())
		require.True(t, errors.Is(err, ErrForcedClose))
		require.True(t, stuck.closed.Load())
		require.False(t, idle.closed.Load())
	})

	t.Run("context", func(t *testing.T) {
		s := getScheduler(1)
		c := new(closer)
		_, err := s.Acquire(c)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		require.True(t, errors.Is(s.Shutdown(ctx), ErrForcedClose))
		require.True(t, c.closed.Load())
	})
}

func TestMetrics(t *testing.T) {
	m := metrics.New(nil)
	s := New(config.Default().Scheduler, nil, m)
	s.Start()

	release, err := s.Acquire(new(closer))
	require.NoError(t, err)
	require.Equal(t, 1.0, testutil.ToFloat64(m.ActiveConnections))
	require.NoError(t, s.Run(context.Background(), func() {}))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ExecutedTasks))

	release()
	require.Zero(t, testutil.ToFloat64(m.ActiveConnections))
	require.NoError(t, s.Shutdown(context.Background()))

	_, err = s.Acquire(new(closer))
	require.Error(t, err)
	require.Equal(t, 1.0, testutil.ToFloat64(m.RejectedConnections))
}
