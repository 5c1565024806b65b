package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	maxReplayBody        = 1 << 20
)

// storedResponse is the replayable record kept per idempotency key.
type storedResponse struct {
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers"`
	Body       []byte              `json:"body"`
}

// Idempotency replays previously seen mutating requests from a JetStream
// KV bucket keyed by the Idempotency-Key header. Entity writes and
// transitions can then be retried over flaky connections without
// creating duplicate versions. Requests without the header, and all
// reads, pass through untouched.
func Idempotency(kv jetstream.KeyValue) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(headerIdempotencyKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			if entry, err := kv.Get(r.Context(), key); err == nil {
				var prev storedResponse
				if err := json.Unmarshal(entry.Value(), &prev); err == nil {
					for name, vals := range prev.Headers {
						for _, v := range vals {
							w.Header().Add(name, v)
						}
					}
					w.WriteHeader(prev.StatusCode)
					_, _ = w.Write(prev.Body)
					return
				}
				slog.Warn("idempotency: corrupt cache entry", "key", key)
			}

			rec := &responseRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				body:           &bytes.Buffer{},
			}
			next.ServeHTTP(rec, r)

			// oversized bodies are served but not replayable
			if rec.body.Len() > maxReplayBody {
				return
			}
			data, err := json.Marshal(storedResponse{
				StatusCode: rec.statusCode,
				Headers:    w.Header().Clone(),
				Body:       rec.body.Bytes(),
			})
			if err == nil {
				if _, err := kv.Put(r.Context(), key, data); err != nil {
					slog.Warn("idempotency: response not stored", "key", key, "error", err)
				}
			}
		})
	}
}

// responseRecorder tees the response into a buffer while writing through.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
