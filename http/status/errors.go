package status

import "github.com/cockroachdb/errors"

// HTTPError is an error kind that maps onto a response code. Values are comparable, so
// errors.Is matches wrapped kinds against the sentinels below.
type HTTPError struct {
	Message string
	Code    Code
}

func NewError(code Code, message string) error {
	return HTTPError{
		Code:    code,
		Message: message,
	}
}

func (h HTTPError) Error() string {
	return h.Message
}

var (
	ErrCloseConnection = NewError(CloseConnection, "actively closing the connection")
	ErrShutdown        = NewError(CloseConnection, "server is shutting down")
	ErrTransportRead   = NewError(CloseConnection, "transport read failed")
	ErrTransportWrite  = NewError(CloseConnection, "transport write failed")
	ErrPrematureClose  = NewError(BadRequest, "connection closed before the message was complete")

	ErrMalformedStartLine        = NewError(BadRequest, "malformed start line")
	ErrInvalidHeaderSyntax       = NewError(BadRequest, "invalid header syntax")
	ErrInvalidChunkSize          = NewError(BadRequest, "invalid chunk size")
	ErrMultipartBoundaryMismatch = NewError(BadRequest, "multipart boundary mismatch")
	ErrURLDecoding               = NewError(BadRequest, "invalid urlencoded sequence")
	ErrBadCookie                 = NewError(BadRequest, "malformed cookie")
	ErrBadContentLength          = NewError(BadRequest, "bad content length")
	ErrTooManyReadCycles         = NewError(BadRequest, "message took too many reads")
	ErrMissingData               = NewError(BadRequest, "data is missing outside of the message body")
	ErrNotFound                  = NewError(NotFound, "not found")
	ErrMethodNotAllowed          = NewError(MethodNotAllowed, "method not allowed")
	ErrContentTooLong            = NewError(RequestEntityTooLarge, "content is too long")
	ErrResourceTooLong           = NewError(RequestURITooLong, "resource is too long")
	ErrUnsupportedMediaType      = NewError(UnsupportedMediaType, "unsupported media type")
	ErrHeaderTooLong             = NewError(RequestHeaderFieldsTooLarge, "header field is too long")
	ErrTooManyHeaders            = NewError(RequestHeaderFieldsTooLarge, "too many headers")
	ErrInternalServerError       = NewError(InternalServerError, "internal server error")
	ErrMethodNotImplemented      = NewError(NotImplemented, "request method is not supported")
	ErrHTTPVersionNotSupported   = NewError(HTTPVersionNotSupported, "HTTP version not supported")
)

// markers are the kinds attached to foreign errors by errors.Mark rather than wrapped.
var markers = []HTTPError{
	ErrTransportRead.(HTTPError),
	ErrTransportWrite.(HTTPError),
	ErrCloseConnection.(HTTPError),
	ErrShutdown.(HTTPError),
}

// CodeOf returns the code of the first HTTPError in the chain or of the kind the error
// is marked with. Any other error is 500.
func CodeOf(err error) Code {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}

	for _, kind := range markers {
		if errors.Is(err, kind) {
			return kind.Code
		}
	}

	return InternalServerError
}
