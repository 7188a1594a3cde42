package errors

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"
)

// ErrorHandler recovers panics from next, logs them and answers with an
// InternalError.
func ErrorHandler(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					requestID := r.Header.Get("X-Request-ID")
					logger.Error("panic recovered",
						zap.Any("error", rec),
						zap.ByteString("stacktrace", debug.Stack()),
						zap.String(RequestIDKey, requestID),
						zap.String("path", r.URL.Path),
					)
					WriteError(w, NewInternalError(requestID, nil))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// LogError logs err with its request context. CoralErrors are logged with
// their type, status and details.
func LogError(logger *zap.Logger, err error, requestID string) {
	var coralErr *CoralError
	if As(err, &coralErr) {
		fields := []zap.Field{
			zap.String("error_type", string(coralErr.Type)),
			zap.String("message", coralErr.Message),
			zap.Int("code", coralErr.Code),
			zap.String(RequestIDKey, requestID),
			zap.Any("details", coralErr.Details),
		}
		if coralErr.err != nil {
			fields = append(fields, zap.Error(coralErr.err))
		}
		if coralErr.Code >= http.StatusInternalServerError {
			logger.Error("request error", fields...)
		} else {
			logger.Warn("request error", fields...)
		}
		return
	}

	logger.Error("unexpected error",
		zap.Error(err),
		zap.String(RequestIDKey, requestID),
	)
}
