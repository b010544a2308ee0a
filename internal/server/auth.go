package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/Mofasaz/aegisai-web/internal/model"
)

// Auth modes.
const (
	AuthNone   = "none"
	AuthAPIKey = "apikey"
)

// Identity headers set by the fronting gateway.
const (
	HeaderAPIKey        = "X-API-Key"
	HeaderUserID        = "X-User-Id"
	HeaderUserGrade     = "X-User-Grade"
	HeaderUserRoles     = "X-User-Roles"
	HeaderCorrelationID = "X-Correlation-Id"
)

// AuthConfig controls how requests are admitted. In apikey mode a request
// must carry one of Keys in X-API-Key. Either way the principal comes from
// the X-User-* headers.
type AuthConfig struct {
	Mode string   `koanf:"mode" validate:"oneof=none apikey"`
	Keys []string `koanf:"keys" validate:"required_if=Mode apikey"`
}

type principalKey struct{}

// PrincipalFrom returns the principal stored by the auth middleware.
func PrincipalFrom(ctx context.Context) model.Principal {
	p, _ := ctx.Value(principalKey{}).(model.Principal)
	return p
}

func withPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// authenticate admits requests per cfg and attaches the principal.
func authenticate(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Mode == AuthAPIKey && !validKey(cfg.Keys, r.Header.Get(HeaderAPIKey)) {
				writeError(w, http.StatusUnauthorized, "missing or invalid API key")
				return
			}
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principalFromHeaders(r.Header))))
		})
	}
}

func validKey(keys []string, got string) bool {
	if got == "" {
		return false
	}
	ok := false
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(got)) == 1 {
			ok = true
		}
	}
	return ok
}

func principalFromHeaders(h http.Header) model.Principal {
	p := model.Principal{
		ID:    strings.TrimSpace(h.Get(HeaderUserID)),
		Grade: strings.TrimSpace(h.Get(HeaderUserGrade)),
	}
	for _, role := range strings.Split(h.Get(HeaderUserRoles), ",") {
		if role = strings.TrimSpace(role); role != "" {
			p.Roles = append(p.Roles, role)
		}
	}
	return p
}
