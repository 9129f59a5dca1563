package kit

import (
	"net/http"

	"github.com/gofrs/uuid/v5"
)

// RequestIDHeader carries the request ID in and out of HTTP calls.
const RequestIDHeader = "X-Request-ID"

// RequestID stores the caller's X-Request-ID (or a fresh UUID) and the "http"
// transport in the request context, and echoes the ID in the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.Must(uuid.NewV4()).String()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := WithTransport(WithRequestID(r.Context(), id), "http")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
