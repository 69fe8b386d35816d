package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// GenericErrorMessage replaces failure details outside development mode.
const GenericErrorMessage = "Internal server error"

// ErrorResponse is the fixed shape of adapter-level failures.
type ErrorResponse struct {
	Error     string `json:"error"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// NewErrorResponse builds the 500 payload. The cause is only exposed when
// development is set.
func NewErrorResponse(cause error, now time.Time, development bool) ErrorResponse {
	msg := GenericErrorMessage
	if development && cause != nil {
		msg = cause.Error()
	}
	return ErrorResponse{
		Error:     "Empire systems temporarily unavailable",
		Status:    "error",
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		Message:   msg,
	}
}

// WriteJSON encodes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

// WriteError writes a {"error": msg} body.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// PanicError turns a recovered value into an error.
func PanicError(rec any) error {
	if err, ok := rec.(error); ok {
		return err
	}
	return fmt.Errorf("%v", rec)
}

// Recover converts handler panics into the fixed 500 payload unless headers
// already went out, in which case the response is left as is.
func Recover(logger *zap.Logger, development bool) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := Record(w)
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				err := PanicError(v)
				logger.Error("panic recovered",
					zap.Error(err),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("request_id", RequestIDFrom(r.Context())),
					zap.Bool("headers_sent", rec.HeadersSent()),
				)
				if HeadersSent(rec) {
					return
				}
				WriteJSON(rec, http.StatusInternalServerError, NewErrorResponse(err, time.Now(), development))
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
