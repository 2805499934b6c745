package transport

import (
	"context"
	"net"

	"github.com/indigo-web/loom/config"
	"golang.org/x/sync/errgroup"
)

// Supervisor runs several bound transports as one. If any of them fails, all the
// others are stopped as well.
type Supervisor struct {
	ts []boundTransport
}

func NewSupervisor() *Supervisor {
	return new(Supervisor)
}

// Add binds the transport to the address. On failure, every transport bound
// before is closed.
func (s *Supervisor) Add(addr string, transport Transport, cb func(net.Conn)) error {
	if err := transport.Bind(addr); err != nil {
		s.close()
		return err
	}

	s.ts = append(s.ts, boundTransport{
		cb: cb,
		t:  transport,
	})

	return nil
}

// Addrs returns the addresses of the bound transports in the order they were added.
func (s *Supervisor) Addrs() []net.Addr {
	addrs := make([]net.Addr, len(s.ts))
	for i, t := range s.ts {
		addrs[i] = t.t.Addr()
	}

	return addrs
}

// Run accepts connections until the context is done or a transport fails. The
// listeners are closed on return, already accepted connections aren't touched.
func (s *Supervisor) Run(ctx context.Context, cfg config.NET) error {
	if len(s.ts) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)

	for _, t := range s.ts {
		g.Go(func() error {
			return t.t.Listen(cfg, t.cb)
		})
	}

	// the context is also cancelled once Wait returns, so this never leaks
	go func() {
		<-ctx.Done()
		for _, t := range s.ts {
			t.t.Stop()
		}
	}()

	err := g.Wait()
	s.close()

	return err
}

// Wait blocks until all the connections of all the transports are done.
func (s *Supervisor) Wait() {
	for _, t := range s.ts {
		t.t.Wait()
	}
}

func (s *Supervisor) close() {
	for _, t := range s.ts {
		_ = t.t.Close()
	}
}

type boundTransport struct {
	cb func(conn net.Conn)
	t  Transport
}
