package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/JonMunkholm/datafinder/internal/logging"
)

// APIKeyHeader carries the client key.
const APIKeyHeader = "X-API-Key"

// APIKeyAuth rejects requests whose X-API-Key is not one of keys. With no
// keys configured it is a no-op, which is the normal local setup.
func APIKeyAuth(keys []string) func(http.Handler) http.Handler {
	if len(keys) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			switch {
			case key == "":
				deny(w, r, http.StatusUnauthorized, "missing API key", "AUTH001")
			case !validKey(key, keys):
				deny(w, r, http.StatusForbidden, "invalid API key", "AUTH002")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// validKey compares against every key so timing does not reveal which one
// matched.
func validKey(key string, keys []string) bool {
	match := 0
	for _, k := range keys {
		match |= subtle.ConstantTimeCompare([]byte(key), []byte(k))
	}
	return match == 1
}

func deny(w http.ResponseWriter, r *http.Request, status int, msg, code string) {
	logging.FromContext(r.Context()).Warn("auth rejected",
		"path", r.URL.Path,
		"method", r.Method,
		"remote_addr", r.RemoteAddr,
		"code", code,
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   msg,
		"message": msg,
		"action":  "Send a configured key in the " + APIKeyHeader + " header",
		"code":    code,
	})
}
