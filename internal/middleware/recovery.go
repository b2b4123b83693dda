package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/minibank/ledger-service/internal/handler"
	"github.com/minibank/ledger-service/internal/logging"
)

// Recovery turns a panicking handler into a 500 so one bad transfer request
// cannot take the listener down. http.ErrAbortHandler passes through; the
// server uses it to abort the connection, not to report a bug.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				log := logging.FromContext(r.Context())
				log.Error("panic recovered",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				handler.RespondAppError(w, handler.ErrInternalError, nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
