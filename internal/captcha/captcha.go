// Package captcha gates selected read endpoints behind third-party CAPTCHA
// verification. The verifier fails fast at construction when unconfigured:
// a gated route with no site key must be unusable, not silently open.
package captcha

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	dErrors "authgate/pkg/domain-errors"
	"authgate/pkg/platform/httputil"
)

const defaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

// Verifier checks caller-supplied captcha tokens against the verification
// endpoint.
type Verifier struct {
	siteKey   string
	verifyURL string
	client    *http.Client
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithVerifyURL overrides the verification endpoint, mainly for tests.
func WithVerifyURL(u string) Option {
	return func(v *Verifier) {
		if u != "" {
			v.verifyURL = u
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) {
		if c != nil {
			v.client = c
		}
	}
}

// New constructs a Verifier. An empty site key is a configuration error.
func New(siteKey string, opts ...Option) (*Verifier, error) {
	if siteKey == "" {
		return nil, errors.New("captcha: site key must be configured")
	}
	v := &Verifier{
		siteKey:   siteKey,
		verifyURL: defaultVerifyURL,
		client:    &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

type verifyResponse struct {
	Success bool `json:"success"`
}

// Verify reports whether the token passes verification.
func (v *Verifier) Verify(token string) (bool, error) {
	resp, err := v.client.PostForm(v.verifyURL, url.Values{
		"secret":   {v.siteKey},
		"response": {token},
	})
	if err != nil {
		return false, fmt.Errorf("captcha: verify request: %w", err)
	}
	defer resp.Body.Close()

	var parsed verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return false, fmt.Errorf("captcha: decode response: %w", err)
	}
	return parsed.Success, nil
}

// Require is middleware that rejects requests without a passing captchaToken
// query parameter.
func Require(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := r.URL.Query().Get("captchaToken")
			if tok == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "captcha token required"))
				return
			}
			ok, err := v.Verify(tok)
			if err != nil {
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "captcha verification failed"))
				return
			}
			if !ok {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "captcha verification rejected"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
