package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"authgate/internal/cache"
	dErrors "authgate/pkg/domain-errors"
	"authgate/pkg/platform/httputil"
)

// CacheHandler exposes read access to the object cache. All routes sit
// behind the captcha gate; see NewRouter.
type CacheHandler struct {
	cache *cache.Service
}

func NewCacheHandler(c *cache.Service) *CacheHandler {
	return &CacheHandler{cache: c}
}

// handleGet serves /cache/{type}. With ?key= it returns one entry, with
// ?nearest= it returns matching keys, otherwise every entry of the type.
func (h *CacheHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	typeName := chi.URLParam(r, "type")

	if key := r.URL.Query().Get("key"); key != "" {
		body, err := h.cache.Get(r.Context(), typeName, key)
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "cache lookup failed"))
			return
		}
		if body == "" {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no cached entry for key"))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"type": typeName, "entry": body})
		return
	}

	if guess := r.URL.Query().Get("nearest"); guess != "" {
		keys, err := h.cache.Nearest(r.Context(), typeName, guess)
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "cache lookup failed"))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"type": typeName, "keys": keys})
		return
	}

	bodies, err := h.cache.GetAll(r.Context(), typeName)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "cache lookup failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"type": typeName, "entries": bodies})
}
