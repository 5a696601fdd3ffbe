// Package httptransport is the thin HTTP layer. Handlers decode, delegate to
// the engine, and translate domain errors; no business logic lives here.
package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"authgate/internal/captcha"
	"authgate/internal/session"
	"authgate/internal/token"
)

// RouterDeps carries everything the router wires together. Cache and captcha
// are optional as a pair: the cache surface only mounts when both are set.
type RouterDeps struct {
	Auth     *AuthHandler
	Cache    *CacheHandler
	Captcha  *captcha.Verifier
	Issuer   *token.Issuer
	Denylist session.InvalidationStore
}

func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", deps.Auth.handleRegister)
		r.Post("/login", deps.Auth.handleLogin)
		r.Post("/verify", deps.Auth.handleVerify)
		r.Post("/password-reset", deps.Auth.handlePasswordReset)

		r.Group(func(r chi.Router) {
			r.Use(Authenticated(deps.Issuer, deps.Denylist))
			r.Post("/logout", deps.Auth.handleLogout)
		})
	})

	if deps.Cache != nil && deps.Captcha != nil {
		r.Route("/cache", func(r chi.Router) {
			r.Use(captcha.Require(deps.Captcha))
			r.Get("/{type}", deps.Cache.handleGet)
		})
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return r
}
