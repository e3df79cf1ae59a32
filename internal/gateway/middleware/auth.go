package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/auth/apikey"
	apperrors "github.com/Adithya-Monish-Kumar-K/federated-search/pkg/errors"
)

// KeyValidator resolves a raw API key. *apikey.Validator implements it.
type KeyValidator interface {
	Validate(ctx context.Context, rawKey string) (*apikey.KeyInfo, error)
}

type contextKey string

const keyInfoKey contextKey = "api_key_info"

// Auth rejects requests that do not carry a valid API key with 401. The key
// is read from "Authorization: Bearer <key>" or X-API-Key.
func Auth(v KeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractAPIKey(r)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "missing api key")
				return
			}
			info, err := v.Validate(r.Context(), key)
			if err != nil {
				if errors.Is(err, apperrors.ErrUnauthorized) {
					writeError(w, http.StatusUnauthorized, err.Error())
					return
				}
				slog.Error("api key validation failed", "error", err, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "authentication error")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), keyInfoKey, info)))
		})
	}
}

// KeyInfoFrom returns the key Auth accepted for this request, if any.
func KeyInfoFrom(ctx context.Context) *apikey.KeyInfo {
	info, _ := ctx.Value(keyInfoKey).(*apikey.KeyInfo)
	return info
}

func extractAPIKey(r *http.Request) string {
	if auth, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(auth)
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
