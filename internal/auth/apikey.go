package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requestKey extracts the API key from X-API-Key, an "Authorization: Bearer"
// header or, for websocket clients that cannot set headers, the api_key
// query parameter.
func requestKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("api_key")
}

// valid reports whether key matches one of keys in constant time per key.
func valid(keys [][]byte, key string) bool {
	ok := 0
	for _, k := range keys {
		ok |= subtle.ConstantTimeCompare(k, []byte(key))
	}
	return ok == 1
}

// APIKeyMiddleware rejects requests without one of validKeys.
// With no keys configured every request passes.
func APIKeyMiddleware(validKeys []string) func(http.Handler) http.Handler {
	keys := make([][]byte, 0, len(validKeys))
	for _, k := range validKeys {
		keys = append(keys, []byte(k))
	}

	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !valid(keys, requestKey(r)) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="caloriediary"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
