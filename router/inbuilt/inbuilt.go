package inbuilt

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/indigo-web/loom/http"
	"github.com/indigo-web/loom/http/method"
	"github.com/indigo-web/loom/router"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var _ router.Router = new(Router)

var errStarted = errors.New("routes can't be changed after the router was started")

type (
	// Handler produces the response to a request. A nil response means 200 OK with
	// no body.
	Handler func(request *http.Request) *http.Response
	// Filter runs before the handler of every route under its prefix. It either
	// calls next or returns its own response, cutting the chain short.
	Filter func(request *http.Request, next Handler) *http.Response
	Option func(*Router)
)

// WithLogger sets the logger recovered panics are reported to.
func WithLogger(log *zap.Logger) Option {
	return func(r *Router) {
		r.log = log.Named("router")
	}
}

type filter struct {
	prefix string
	fn     Filter
}

// Router is the built-in implementation of router.Router. Requests are routed to the
// longest registered prefix of their path, matched at segment boundaries. At the
// chosen prefix, a handler for the exact method is preferred, then a GET handler for
// HEAD requests, then a handler for any method. If no prefix matches, the request is
// not found, and if the prefix has no suitable handler, the method isn't allowed.
type Router struct {
	log     *zap.Logger
	routes  map[string]*entry
	filters []filter
	allow   string
	started bool
	errors  errorHandlers
}

// New returns a router with no routes and the default error handlers.
func New(opts ...Option) *Router {
	r := &Router{
		log:    zap.NewNop(),
		routes: make(map[string]*entry),
		errors: newErrorHandlers(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Handle registers the handler for the method at the prefix.
func (r *Router) Handle(m method.Method, prefix string, handler Handler) error {
	e, err := r.entry(prefix)
	if err != nil {
		return err
	}

	if e.handlers[m] != nil {
		return errors.Newf("handler already registered: %s %s", m, e.displayPrefix())
	}

	e.handlers[m] = handler
	return nil
}

// HandleAny registers the handler for every method at the prefix that has no handler
// of its own.
func (r *Router) HandleAny(prefix string, handler Handler) error {
	e, err := r.entry(prefix)
	if err != nil {
		return err
	}

	if e.any != nil {
		return errors.Newf("handler already registered: any method %s", e.displayPrefix())
	}

	e.any = handler
	return nil
}

// HandlePayload registers the factory for the method at the prefix. Request bodies
// are then streamed into the payload handlers it creates. Once the body is complete,
// the buffered handler of the same route answers, or 200 OK if there is none.
func (r *Router) HandlePayload(m method.Method, prefix string, factory router.PayloadFactory) error {
	e, err := r.entry(prefix)
	if err != nil {
		return err
	}

	if e.payloads[m] != nil {
		return errors.Newf("payload handler already registered: %s %s", m, e.displayPrefix())
	}

	e.payloads[m] = factory
	return nil
}

// HandlePayloadAny registers the factory for every method at the prefix that has no
// factory of its own.
func (r *Router) HandlePayloadAny(prefix string, factory router.PayloadFactory) error {
	e, err := r.entry(prefix)
	if err != nil {
		return err
	}

	if e.anyPayload != nil {
		return errors.Newf("payload handler already registered: any method %s", e.displayPrefix())
	}

	e.anyPayload = factory
	return nil
}

// Filter adds the filter to every route under the prefix. Filters run in the order
// they were added, the first one being the outermost.
func (r *Router) Filter(prefix string, f Filter) error {
	if r.started {
		return errStarted
	}

	prefix, err := cleanPrefix(prefix)
	if err != nil {
		return err
	}

	r.filters = append(r.filters, filter{prefix: prefix, fn: f})
	return nil
}

// OnStart freezes the routes, wrapping the handlers into their filters.
func (r *Router) OnStart() error {
	if r.started {
		return nil
	}

	r.started = true

	for _, e := range r.routes {
		e.implyPayloadHandlers()

		filters := lo.FilterMap(r.filters, func(f filter, _ int) (Filter, bool) {
			return f.fn, covers(f.prefix, e.prefix)
		})
		e.wrap(filters)
		e.allow = joinMethods(lo.Filter(method.List, func(m method.Method, _ int) bool {
			return e.handler(m) != nil
		}))
	}

	r.allow = joinMethods(lo.Filter(method.List, func(m method.Method, _ int) bool {
		return m == method.OPTIONS || lo.SomeBy(lo.Values(r.routes), func(e *entry) bool {
			return e.handler(m) != nil
		})
	}))

	return nil
}

func (r *Router) entry(prefix string) (*entry, error) {
	if r.started {
		return nil, errStarted
	}

	prefix, err := cleanPrefix(prefix)
	if err != nil {
		return nil, err
	}

	e, found := r.routes[prefix]
	if !found {
		e = &entry{prefix: prefix}
		r.routes[prefix] = e
	}

	return e, nil
}

// lookup returns the entry of the longest registered prefix of the path.
func (r *Router) lookup(path string) *entry {
	path = strings.TrimSuffix(path, "/")

	for {
		if e, found := r.routes[path]; found {
			return e
		}

		boundary := strings.LastIndexByte(path, '/')
		if boundary == -1 {
			return nil
		}

		path = path[:boundary]
	}
}

// cleanPrefix strips the trailing slash, so the root is represented by an empty string.
func cleanPrefix(prefix string) (string, error) {
	if len(prefix) > 0 && prefix[0] != '/' {
		return "", errors.Newf("prefix must start with a slash: %q", prefix)
	}

	return strings.TrimSuffix(prefix, "/"), nil
}

// covers reports whether the route lies under the prefix.
func covers(prefix, route string) bool {
	return len(prefix) == 0 || route == prefix || strings.HasPrefix(route, prefix+"/")
}

func joinMethods(methods []method.Method) string {
	return strings.Join(lo.Map(methods, func(m method.Method, _ int) string {
		return m.String()
	}), ", ")
}
