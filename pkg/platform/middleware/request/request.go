// Package request assigns a request ID to every inbound HTTP request.
package request

import (
	"net/http"

	"github.com/google/uuid"

	"dealflow/pkg/requestcontext"
)

// HeaderRequestID is echoed on responses and honored on requests.
const HeaderRequestID = "X-Request-ID"

const maxInboundIDLength = 128

// RequestID reuses a caller-supplied X-Request-ID when it is reasonably sized,
// otherwise generates one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(HeaderRequestID)
		if reqID == "" || len(reqID) > maxInboundIDLength {
			reqID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), reqID)))
	})
}
