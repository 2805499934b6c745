package loom

import (
	"context"
	"net"

	"github.com/cockroachdb/errors"
	"github.com/indigo-web/loom/config"
	httpserver "github.com/indigo-web/loom/internal/server/http"
	"github.com/indigo-web/loom/metrics"
	"github.com/indigo-web/loom/router"
	"github.com/indigo-web/loom/router/inbuilt"
	"github.com/indigo-web/loom/scheduler"
	"github.com/indigo-web/loom/transport"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type stopMode uint8

const (
	graceful stopMode = iota
	immediate
)

type hooks struct {
	OnStart func(addrs []net.Addr)
	OnStop  func()
}

// App binds the transports, the scheduler, the server and the router together.
type App struct {
	addrs   []string
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Metrics
	hooks   hooks
	stop    chan stopMode
}

// New returns an app listening on the address.
func New(addr string) *App {
	return &App{
		addrs: []string{addr},
		cfg:   config.Default(),
		log:   zap.NewNop(),
		stop:  make(chan stopMode, 1),
	}
}

// Tune replaces the default configuration.
func (a *App) Tune(cfg *config.Config) *App {
	a.cfg = cfg
	return a
}

// Logger sets the logger every component derives its own from.
func (a *App) Logger(log *zap.Logger) *App {
	a.log = log
	return a
}

// Metrics registers the collectors of the server on the registerer.
func (a *App) Metrics(reg prometheus.Registerer) *App {
	a.metrics = metrics.New(reg)
	return a
}

// Listen adds one more address to listen on.
func (a *App) Listen(addr string) *App {
	a.addrs = append(a.addrs, addr)
	return a
}

// NotifyOnStart calls the callback with the bound addresses right before connections
// start being accepted.
func (a *App) NotifyOnStart(cb func(addrs []net.Addr)) *App {
	a.hooks.OnStart = cb
	return a
}

// NotifyOnStop calls the callback once the app is down: no connections are accepted,
// and all the served ones are closed.
func (a *App) NotifyOnStop(cb func()) *App {
	a.hooks.OnStop = cb
	return a
}

// Serve runs the app until it's stopped or a listener fails. If r is nil, an empty
// inbuilt router is used.
func (a *App) Serve(r router.Router) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	if r == nil {
		r = inbuilt.New(inbuilt.WithLogger(a.log))
	}

	if err := r.OnStart(); err != nil {
		return errors.Wrap(err, "start router")
	}

	sched := scheduler.New(a.cfg.Scheduler, a.log, a.metrics)
	server := httpserver.NewServer(a.cfg, r, sched, a.log, a.metrics)
	// connections outlive the listeners for as long as the drain takes
	connCtx, cancelConns := context.WithCancel(context.Background())
	defer cancelConns()

	supervisor := transport.NewSupervisor()
	for _, addr := range a.addrs {
		err := supervisor.Add(addr, transport.NewTCP(), func(conn net.Conn) {
			client := transport.NewClient(conn, a.cfg.NET.KeepAliveTimeout, make([]byte, a.cfg.NET.ReadBufferSize))
			server.Serve(connCtx, client)
		})
		if err != nil {
			return err
		}
	}

	sched.Start()
	addrs := supervisor.Addrs()
	a.log.Info("listening", zap.Any("addrs", addrs))
	if a.hooks.OnStart != nil {
		a.hooks.OnStart(addrs)
	}

	mode, err := a.run(supervisor)

	drainCtx, cancelDrain := context.WithCancel(context.Background())
	if mode == immediate {
		cancelDrain()
	}

	drainErr := sched.Shutdown(drainCtx)
	cancelDrain()
	if mode == immediate && errors.Is(drainErr, scheduler.ErrForcedClose) {
		drainErr = nil
	}

	cancelConns()
	supervisor.Wait()
	a.log.Info("stopped")
	if a.hooks.OnStop != nil {
		a.hooks.OnStop()
	}

	return errors.CombineErrors(err, drainErr)
}

// run accepts connections until either a stop is requested or a listener fails.
func (a *App) run(supervisor *transport.Supervisor) (mode stopMode, err error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return supervisor.Run(gctx, a.cfg.NET)
	})
	g.Go(func() error {
		select {
		case mode = <-a.stop:
			cancel()
		case <-gctx.Done():
		}

		return nil
	})

	return mode, g.Wait()
}

// GracefulStop stops accepting connections and lets the served ones finish, for no
// longer than the drain timeout. The call doesn't block.
func (a *App) GracefulStop() {
	a.requestStop(graceful)
}

// Stop closes all the connections immediately. The call doesn't block.
func (a *App) Stop() {
	a.requestStop(immediate)
}

func (a *App) requestStop(mode stopMode) {
	select {
	case a.stop <- mode:
	default:
	}
}
