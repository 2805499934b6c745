package inbuilt

import (
	"github.com/indigo-web/loom/http"
	"github.com/indigo-web/loom/http/method"
	"github.com/indigo-web/loom/router"
)

// entry holds everything registered at a single prefix.
type entry struct {
	prefix     string
	handlers   [method.Count + 1]Handler
	payloads   [method.Count + 1]router.PayloadFactory
	any        Handler
	anyPayload router.PayloadFactory
	// allow is the value of the Allow header, listing the methods served.
	allow string
}

func (e *entry) handler(m method.Method) Handler {
	if int(m) >= len(e.handlers) {
		return nil
	}

	if h := e.handlers[m]; h != nil {
		return h
	}

	if m == method.HEAD && e.handlers[method.GET] != nil {
		return e.handlers[method.GET]
	}

	return e.any
}

func (e *entry) payload(m method.Method) router.PayloadFactory {
	if int(m) >= len(e.payloads) {
		return nil
	}

	if f := e.payloads[m]; f != nil {
		return f
	}

	return e.anyPayload
}

// implyPayloadHandlers answers 200 OK to methods that only stream the payload.
func (e *entry) implyPayloadHandlers() {
	for m, factory := range e.payloads {
		if factory != nil && e.handlers[m] == nil {
			e.handlers[m] = respondOK
		}
	}

	if e.anyPayload != nil && e.any == nil {
		e.any = respondOK
	}
}

func (e *entry) wrap(filters []Filter) {
	for m, handler := range e.handlers {
		if handler != nil {
			e.handlers[m] = compose(handler, filters)
		}
	}

	if e.any != nil {
		e.any = compose(e.any, filters)
	}
}

func (e *entry) displayPrefix() string {
	if len(e.prefix) == 0 {
		return "/"
	}

	return e.prefix
}

// compose makes a single handler out of the chain of filters ending with the handler.
func compose(handler Handler, filters []Filter) Handler {
	for i := len(filters) - 1; i >= 0; i-- {
		fn, next := filters[i], handler
		handler = func(request *http.Request) *http.Response {
			return fn(request, next)
		}
	}

	return handler
}

func respondOK(request *http.Request) *http.Response {
	return request.Respond()
}
