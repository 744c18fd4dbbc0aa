package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// ExposedHeaders are response headers browser front ends need to read on
// downloads and archives.
var ExposedHeaders = []string{"Content-Disposition", "X-Archive-Succeeded", "X-Archive-Total"}

// requestAPIKey finds the caller's key. Headers win over query parameters;
// EventSource streams and plain links can only use api_key or key.
func requestAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); len(auth) > len("Bearer ") && strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	q := r.URL.Query()
	if key := q.Get("api_key"); key != "" {
		return key
	}
	return q.Get("key")
}

// APIKeyAuth rejects requests that do not carry apiKey. An empty apiKey
// rejects everything; the router leaves the middleware out instead.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	want := []byte(apiKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := requestAPIKey(r)
			switch {
			case key == "":
				unauthorized(w, "missing API key")
				return
			case len(want) == 0 || subtle.ConstantTimeCompare([]byte(key), want) != 1:
				unauthorized(w, "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="tikgrab"`)
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}

// CORS adds CORS headers so browser front ends can call the API.
func CORS(next http.Handler) http.Handler {
	exposed := strings.Join(ExposedHeaders, ", ")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, Authorization, Last-Event-ID")
		h.Set("Access-Control-Expose-Headers", exposed)
		h.Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
