package http

import (
	"github.com/cockroachdb/errors"
	"github.com/indigo-web/loom/http/status"
	"github.com/indigo-web/loom/router"
	"go.uber.org/zap"
)

// guardedPayload recovers panics of a payload handler. Writes run on the connection's
// goroutine rather than on a worker, so a panic there would otherwise take the whole
// process down.
type guardedPayload struct {
	handler router.PayloadHandler
	log     *zap.Logger
}

func (g guardedPayload) Write(p []byte) (n int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			n, err = 0, g.panicked("write", rec)
		}
	}()

	return g.handler.Write(p)
}

func (g guardedPayload) Complete() (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = g.panicked("complete", rec)
		}
	}()

	return g.handler.Complete()
}

func (g guardedPayload) Abort(cause error) {
	defer func() {
		if rec := recover(); rec != nil {
			_ = g.panicked("abort", rec)
		}
	}()

	g.handler.Abort(cause)
}

func (g guardedPayload) panicked(op string, rec any) error {
	g.log.Error("payload handler panicked", zap.String("op", op), zap.Any("panic", rec), zap.Stack("stack"))
	return errors.Wrapf(status.ErrInternalServerError, "payload handler panicked on %s: %v", op, rec)
}
