package scheduler

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/indigo-web/loom/config"
	"github.com/indigo-web/loom/http/status"
	"github.com/indigo-web/loom/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrForcedClose is returned by Shutdown if some connections didn't finish in time.
var ErrForcedClose = errors.New("connections were closed forcibly")

// Task is a unit of work executed by some worker.
type Task func()

// Scheduler runs tasks on a fixed number of workers fed by a single FIFO queue, and
// accounts for the connections being served. It also drives the graceful shutdown:
// once it's started, no more connections are accepted, and the served ones are given
// time to finish before being closed forcibly.
type Scheduler struct {
	cfg     config.Scheduler
	log     *zap.Logger
	metrics *metrics.Metrics

	// queueMu guards sending to the queue against closing it
	queueMu sync.RWMutex
	closed  bool
	queue   chan Task
	quit    chan struct{}
	workers errgroup.Group
	start   sync.Once
	stop    sync.Once

	mu       sync.Mutex
	closers  map[uint64]io.Closer
	nextID   uint64
	active   atomic.Int64
	draining atomic.Bool
	drained  chan struct{}
	idle     sync.Once
}

// New returns a scheduler. Both log and m may be nil.
func New(cfg config.Scheduler, log *zap.Logger, m *metrics.Metrics) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}

	return &Scheduler{
		cfg:     cfg,
		log:     log.Named("scheduler"),
		metrics: m,
		queue:   make(chan Task, cfg.QueueSize),
		quit:    make(chan struct{}),
		closers: make(map[uint64]io.Closer),
		drained: make(chan struct{}),
	}
}

// Start spawns the workers. Subsequent calls are no-op.
func (s *Scheduler) Start() {
	s.start.Do(func() {
		for range s.cfg.Workers {
			s.workers.Go(s.work)
		}

		s.log.Debug("started", zap.Int("workers", s.cfg.Workers), zap.Int("queue", s.cfg.QueueSize))
	})
}

// work runs tasks until the queue is closed and emptied, so every accepted task is
// executed.
func (s *Scheduler) work() error {
	for task := range s.queue {
		s.metrics.TaskStarted()
		s.execute(task)
	}

	return nil
}

func (s *Scheduler) execute(task Task) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("task panicked", zap.Any("panic", rec), zap.Stack("stack"))
		}
	}()

	task()
}

// Post enqueues the task, waiting for a free slot if the queue is full. Every task
// accepted is executed exactly once, even if Shutdown is called meanwhile. Tasks are
// refused with status.ErrShutdown once the workers are being stopped.
func (s *Scheduler) Post(task Task) error {
	s.queueMu.RLock()
	defer s.queueMu.RUnlock()

	if s.closed {
		return status.ErrShutdown
	}

	s.queue <- task
	s.metrics.TaskQueued()
	return nil
}

// Run posts the task and waits for it to finish. If the context is done or the
// shutdown begins before the task was picked, it's withdrawn and the cause is
// returned. A task already running is always waited for.
func (s *Scheduler) Run(ctx context.Context, task Task) error {
	var claimed atomic.Bool
	done := make(chan struct{})

	err := s.Post(func() {
		defer close(done)
		if claimed.CompareAndSwap(false, true) {
			task()
		}
	})
	if err != nil {
		return err
	}

	var cause error

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		cause = ctx.Err()
	case <-s.quit:
		cause = status.ErrShutdown
	}

	if claimed.CompareAndSwap(false, true) {
		return cause
	}

	<-done
	return nil
}

// Acquire accounts for a new connection. The returned release must be called once
// the connection is done with, and may be called any number of times. While the
// scheduler is draining, connections are refused with status.ErrShutdown. The closer
// is used to close the connection forcibly, if it fails to finish in time.
func (s *Scheduler) Acquire(closer io.Closer) (release func(), err error) {
	s.mu.Lock()
	if s.draining.Load() {
		s.mu.Unlock()
		s.metrics.ConnectionRejected()
		return nil, status.ErrShutdown
	}

	id := s.nextID
	s.nextID++
	s.closers[id] = closer
	s.active.Add(1)
	s.mu.Unlock()

	s.metrics.ConnectionOpened()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.closers, id)
			s.active.Add(-1)
			if s.draining.Load() && len(s.closers) == 0 {
				s.markDrained()
			}
			s.mu.Unlock()

			s.metrics.ConnectionClosed()
		})
	}, nil
}

// ActiveUsers returns the number of connections being served.
func (s *Scheduler) ActiveUsers() int64 {
	return s.active.Load()
}

// Draining reports whether the shutdown started. Connections are expected to close
// after the response they are currently working on.
func (s *Scheduler) Draining() bool {
	return s.draining.Load()
}

// Shutdown refuses new connections, waits for the active ones to finish and stops the
// workers. Connections still active after the drain timeout or the context is done are
// closed forcibly, in which case ErrForcedClose is returned.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.draining.Store(true)
	if len(s.closers) == 0 {
		s.markDrained()
	}
	s.mu.Unlock()

	s.log.Info("draining", zap.Int64("active", s.ActiveUsers()))

	timer := time.NewTimer(s.cfg.DrainTimeout)
	defer timer.Stop()

	var err error

	select {
	case <-s.drained:
	case <-timer.C:
		err = s.forceClose("drain timeout")
	case <-ctx.Done():
		err = s.forceClose(ctx.Err().Error())
	}

	s.stop.Do(func() {
		close(s.quit)

		s.queueMu.Lock()
		s.closed = true
		close(s.queue)
		s.queueMu.Unlock()
	})
	_ = s.workers.Wait()
	s.log.Info("stopped")

	return err
}

func (s *Scheduler) forceClose(reason string) error {
	s.mu.Lock()
	closers := make([]io.Closer, 0, len(s.closers))
	for _, closer := range s.closers {
		closers = append(closers, closer)
	}
	s.mu.Unlock()

	if len(closers) == 0 {
		return nil
	}

	s.log.Warn("closing connections forcibly", zap.Int("count", len(closers)), zap.String("reason", reason))
	for _, closer := range closers {
		_ = closer.Close()
	}

	return errors.Wrapf(ErrForcedClose, "%d connections (%s)", len(closers), reason)
}

func (s *Scheduler) markDrained() {
	s.idle.Do(func() {
		close(s.drained)
	})
}
