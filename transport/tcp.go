package transport

import (
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/indigo-web/loom/config"
	"github.com/indigo-web/loom/internal/timer"
)

// Transport accepts connections and serves each of them in its own goroutine.
type Transport interface {
	Bind(addr string) error
	// Listen blocks until either Stop was called or accepting failed. The callback
	// owns the connection and must close it.
	Listen(cfg config.NET, cb func(conn net.Conn)) error
	Stop()
	Close() error
	// Wait blocks until every connection callback has returned.
	Wait()
	Addr() net.Addr
}

type TCP struct {
	l    *net.TCPListener
	wg   *sync.WaitGroup
	stop *atomic.Bool
}

func NewTCP() *TCP {
	return &TCP{
		wg:   new(sync.WaitGroup),
		stop: new(atomic.Bool),
	}
}

func (t *TCP) Bind(addr string) error {
	tcpaddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "resolve %q", addr)
	}

	t.l, err = net.ListenTCP("tcp", tcpaddr)
	return errors.Wrapf(err, "listen %q", addr)
}

func (t *TCP) Listen(cfg config.NET, cb func(conn net.Conn)) error {
	for !t.stop.Load() {
		err := t.l.SetDeadline(timer.Deadline(cfg.AcceptLoopInterruptPeriod))
		if err != nil {
			if t.stop.Load() {
				return nil
			}

			return err
		}

		conn, err := t.l.Accept()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}

			if errors.Is(err, net.ErrClosed) && t.stop.Load() {
				return nil
			}

			return err
		}

		t.wg.Add(1)
		go func() {
			cb(conn)
			t.wg.Done()
		}()
	}

	return nil
}

// Stop interrupts the accept loop by closing the listener.
func (t *TCP) Stop() {
	t.stop.Store(true)
	_ = t.Close()
}

func (t *TCP) Close() error {
	if t.l == nil {
		return nil
	}

	if err := t.l.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}

func (t *TCP) Wait() {
	t.wg.Wait()
}

func (t *TCP) Addr() net.Addr {
	if t.l == nil {
		return nil
	}

	return t.l.Addr()
}
