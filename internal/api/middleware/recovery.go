package middleware

import (
	"log/slog"
	"net/http"

	apierrors "github.com/factorhub/marketplace/internal/api/errors"
	"github.com/go-chi/chi/v5/middleware"
)

// Recovery returns a middleware that recovers from panics, logs a structured
// error entry and answers with a 500.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil || rec == http.ErrAbortHandler {
					if rec != nil {
						panic(rec)
					}
					return
				}
				requestID := middleware.GetReqID(r.Context())

				entry := apierrors.NewErrorLogEntry(requestID, apierrors.CodeInternalError, "panic recovered")
				attrs := append(entry.ToSlogAttrs(),
					"error", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"user_id", GetUserID(r.Context()),
				)
				logger.Error("panic recovered", attrs...)

				apierrors.WriteErrorWithRequestID(w,
					apierrors.NewInternalError("An unexpected error occurred"),
					requestID)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
