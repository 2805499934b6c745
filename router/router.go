package router

import (
	"io"

	"github.com/indigo-web/loom/http"
)

// Router dispatches requests parsed by a connection.
type Router interface {
	// OnStart is called once before the first request. Routes can't be changed after.
	OnStart() error
	// OnHeaders is called as soon as the header section of a request is parsed. If a
	// payload handler is returned, the body is streamed into it instead of being
	// buffered in the request.
	OnHeaders(request *http.Request) (PayloadHandler, error)
	// OnRequest is called once the request is complete.
	OnRequest(request *http.Request) *http.Response
	// OnError returns the response to a request that failed. The connection is closed
	// afterward unless the error is a routing one.
	OnError(request *http.Request, err error) *http.Response
}

// PayloadHandler receives the body of a single request as it arrives. Exactly one of
// Complete and Abort is called, after which the handler is dropped.
type PayloadHandler interface {
	io.Writer
	// Complete is called after the last byte of the body was written.
	Complete() error
	// Abort is called if the body can't be received to the end, e.g. the connection
	// broke or the body turned out malformed.
	Abort(err error)
}

// PayloadFactory creates a fresh payload handler per request, so no state is shared
// between connections.
type PayloadFactory interface {
	Create(request *http.Request) (PayloadHandler, error)
}

// PayloadFactoryFunc adapts a function to PayloadFactory.
type PayloadFactoryFunc func(request *http.Request) (PayloadHandler, error)

func (f PayloadFactoryFunc) Create(request *http.Request) (PayloadHandler, error) {
	return f(request)
}
