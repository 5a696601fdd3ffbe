package httptransport

import (
	"net/http"
	"strings"

	"authgate/internal/session"
	"authgate/internal/token"
	dErrors "authgate/pkg/domain-errors"
	"authgate/pkg/platform/httputil"
)

// Authenticated guards routes that require a live session. The bearer token
// comes from the Authorization header, falling back to the access_token
// cookie. The session id cookie is mandatory and is checked against the
// denylist on every request; a caller cannot opt out of the revocation check
// by withholding the cookie, so a logged-out session cannot keep using a
// still-unexpired token.
func Authenticated(issuer *token.Issuer, denylist session.InvalidationStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer := bearerToken(r)
			if bearer == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}
			if _, err := issuer.Validate(bearer); err != nil {
				httputil.WriteError(w, err)
				return
			}

			sessionID := sessionIDCookie(r)
			if sessionID == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing session id"))
				return
			}
			revoked, err := denylist.IsRevoked(r.Context(), sessionID)
			if err != nil {
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check session state"))
				return
			}
			if revoked {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "session has been revoked"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if tok, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return tok
		}
		return ""
	}
	if cookie, err := r.Cookie(token.ArtifactAccessToken); err == nil {
		return cookie.Value
	}
	return ""
}

func sessionIDCookie(r *http.Request) string {
	cookie, err := r.Cookie(token.ArtifactSessionID)
	if err != nil {
		return ""
	}
	return cookie.Value
}
