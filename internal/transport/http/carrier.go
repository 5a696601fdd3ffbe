package httptransport

import (
	"net/http"
	"time"

	"authgate/internal/token"
)

// cookieCarrier binds session artifacts to HTTP cookies. Reads come from the
// request, writes go to the response, and a write shadows the request value
// so Get after Set within one exchange observes the new state. Writes are
// coalesced per cookie name: a Set after a Clear replaces the pending
// deletion, so the response never carries two Set-Cookie headers for the
// same name.
type cookieCarrier struct {
	w      http.ResponseWriter
	r      *http.Request
	maxAge time.Duration

	pending map[string]*http.Cookie
	order   []string
}

func newCookieCarrier(w http.ResponseWriter, r *http.Request, maxAge time.Duration) *cookieCarrier {
	return &cookieCarrier{
		w:       w,
		r:       r,
		maxAge:  maxAge,
		pending: make(map[string]*http.Cookie),
	}
}

func (c *cookieCarrier) Get(name string) string {
	if cookie, ok := c.pending[name]; ok {
		if cookie.MaxAge < 0 {
			return ""
		}
		return cookie.Value
	}
	cookie, err := c.r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (c *cookieCarrier) Set(name, value string, httpOnly bool) {
	c.stage(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(c.maxAge.Seconds()),
		HttpOnly: httpOnly,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c *cookieCarrier) Clear(name string) {
	c.stage(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// stage records the latest write for the name and rewrites the Set-Cookie
// headers from scratch. The carrier is the only cookie writer on these
// handlers, so replacing the header wholesale is safe.
func (c *cookieCarrier) stage(cookie *http.Cookie) {
	if _, ok := c.pending[cookie.Name]; !ok {
		c.order = append(c.order, cookie.Name)
	}
	c.pending[cookie.Name] = cookie

	c.w.Header().Del("Set-Cookie")
	for _, name := range c.order {
		http.SetCookie(c.w, c.pending[name])
	}
}

var _ token.Carrier = (*cookieCarrier)(nil)
