package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sarcrisk/sarcrisk/internal/platform/fhir"
)

// RequestTimeout puts a deadline on the request context. The handler runs in
// the calling goroutine against a buffered writer; if the deadline passed by
// the time it returns, its output is dropped and the client gets 504 with an
// OperationOutcome. Handlers must honour the context to release the request
// promptly. Panics propagate to Recovery with the response reset.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			res := c.Response()
			orig := res.Writer
			buf := newBufferedWriter(orig.Header())
			res.Writer = buf

			panicked := true
			defer func() {
				res.Writer = orig
				if panicked {
					resetResponse(res)
				}
			}()
			err := next(c)
			panicked = false

			res.Writer = orig
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				resetResponse(res)
				return fhir.WriteOutcome(c, http.StatusGatewayTimeout, fhir.NewOperationOutcome(
					fhir.IssueSeverityError, fhir.IssueTypeTimeout,
					"Request processing exceeded the allowed time limit"))
			}
			buf.flushTo(orig)
			return err
		}
	}
}

func resetResponse(res *echo.Response) {
	res.Committed = false
	res.Status = http.StatusOK
	res.Size = 0
}

// bufferedWriter holds a handler's response until RequestTimeout decides
// whether it reaches the client.
type bufferedWriter struct {
	header http.Header
	code   int
	body   bytes.Buffer
}

func newBufferedWriter(base http.Header) *bufferedWriter {
	return &bufferedWriter{header: base.Clone()}
}

func (w *bufferedWriter) Header() http.Header { return w.header }

func (w *bufferedWriter) WriteHeader(code int) {
	if w.code == 0 {
		w.code = code
	}
}

func (w *bufferedWriter) Write(p []byte) (int, error) {
	if w.code == 0 {
		w.code = http.StatusOK
	}
	return w.body.Write(p)
}

func (w *bufferedWriter) flushTo(dst http.ResponseWriter) {
	h := dst.Header()
	for k, v := range w.header {
		h[k] = v
	}
	if w.code == 0 {
		return
	}
	dst.WriteHeader(w.code)
	_, _ = dst.Write(w.body.Bytes())
}
