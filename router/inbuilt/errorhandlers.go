package inbuilt

import (
	"github.com/indigo-web/loom/http"
	"github.com/indigo-web/loom/http/status"
)

// errorBody is the JSON document default error responses carry.
type errorBody struct {
	Code        status.Code `json:"code"`
	Message     string      `json:"message"`
	Description string      `json:"description"`
}

type errorHandlers struct {
	notFound, methodNotAllowed, badRequest, serverError Handler
}

func newErrorHandlers() errorHandlers {
	return errorHandlers{
		notFound:         defaultErrorHandler,
		methodNotAllowed: defaultMethodNotAllowedHandler,
		badRequest:       defaultErrorHandler,
		serverError:      defaultErrorHandler,
	}
}

// For returns the handler answering errors with the code.
func (e errorHandlers) For(code status.Code) Handler {
	switch {
	case code == status.NotFound:
		return e.notFound
	case code == status.MethodNotAllowed:
		return e.methodNotAllowed
	case code >= 500:
		return e.serverError
	default:
		return e.badRequest
	}
}

// NotFound replaces the handler of requests matching no route.
func (r *Router) NotFound(handler Handler) *Router {
	r.errors.notFound = handler
	return r
}

// MethodNotAllowed replaces the handler of requests matching a route with no handler
// for their method. The methods the route serves are in request.Env.AllowedMethods.
func (r *Router) MethodNotAllowed(handler Handler) *Router {
	r.errors.methodNotAllowed = handler
	return r
}

// BadRequest replaces the handler of malformed requests. The error is in
// request.Env.Error.
func (r *Router) BadRequest(handler Handler) *Router {
	r.errors.badRequest = handler
	return r
}

// ServerError replaces the handler of failed and panicked handlers. The error is in
// request.Env.Error.
func (r *Router) ServerError(handler Handler) *Router {
	r.errors.serverError = handler
	return r
}

func defaultErrorHandler(request *http.Request) *http.Response {
	code := status.CodeOf(request.Env.Error)
	body := errorBody{
		Code:    code,
		Message: status.Text(code),
	}

	switch code {
	case status.NotFound:
		body.Description = "The requested URL: [" + request.Path + "] was not found on this server."
	case status.BadRequest:
		body.Description = "Your browser sent a request that this server could not understand."
	default:
		if request.Env.Error != nil {
			body.Description = request.Env.Error.Error()
		}
	}

	return request.Respond().
		Code(code).
		JSON(body)
}

func defaultMethodNotAllowedHandler(request *http.Request) *http.Response {
	return defaultErrorHandler(request).
		Header("Allow", request.Env.AllowedMethods)
}
