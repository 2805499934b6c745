package inbuilt

import (
	"github.com/cockroachdb/errors"
	"github.com/indigo-web/loom/http"
	"github.com/indigo-web/loom/http/method"
	"github.com/indigo-web/loom/http/status"
	"github.com/indigo-web/loom/router"
	"go.uber.org/zap"
)

// OnHeaders creates the payload handler of the route, if there's any.
func (r *Router) OnHeaders(request *http.Request) (handler router.PayloadHandler, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			handler, err = nil, r.panicked(request, rec)
		}
	}()

	e := r.lookup(request.Path)
	if e == nil {
		return nil, nil
	}

	factory := e.payload(request.Method)
	if factory == nil {
		return nil, nil
	}

	request.Env.Route = e.prefix
	return factory.Create(request)
}

func (r *Router) OnRequest(request *http.Request) (response *http.Response) {
	if request.Method == method.OPTIONS && request.Path == "*" {
		return request.Respond().Header("Allow", r.allow)
	}

	e := r.lookup(request.Path)
	if e == nil {
		return r.OnError(request, status.ErrNotFound)
	}

	handler := e.handler(request.Method)
	if handler == nil {
		request.Env.AllowedMethods = e.allow
		return r.OnError(request, status.ErrMethodNotAllowed)
	}

	request.Env.Route = e.prefix

	defer func() {
		if rec := recover(); rec != nil {
			response = r.OnError(request, r.panicked(request, rec))
		}
	}()

	if response = handler(request); response == nil {
		response = request.Respond()
	}

	return response
}

// OnError passes the request to the error handler matching the code of the error.
// Panics of custom error handlers fall back to the default one.
func (r *Router) OnError(request *http.Request, err error) (response *http.Response) {
	request.Env.Error = err
	handler := r.errors.For(status.CodeOf(err))

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("error handler panicked", zap.Any("panic", rec), zap.Error(err))
			response = defaultErrorHandler(request)
		}
	}()

	if response = handler(request); response == nil {
		response = defaultErrorHandler(request)
	}

	return response
}

func (r *Router) panicked(request *http.Request, rec any) error {
	err := errors.Newf("handler panicked: %v", rec)
	r.log.Error("recovered from panic",
		zap.String("conn", request.Env.ConnID),
		zap.Stringer("method", request.Method),
		zap.String("path", request.Path),
		zap.Any("panic", rec),
		zap.Stack("stack"),
	)

	return errors.Mark(err, status.ErrInternalServerError)
}
