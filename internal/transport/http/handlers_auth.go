package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"authgate/internal/engine"
	"authgate/internal/schema"
	dErrors "authgate/pkg/domain-errors"
	"authgate/pkg/platform/httputil"
)

// Notifier is the mail hook invoked after registration and reset requests.
// Delivery failures are logged, never surfaced to the caller.
type Notifier interface {
	SendVerification(ctx context.Context, rec any) error
	SendPasswordReset(ctx context.Context, rec any) error
}

// AuthHandler exposes the authentication flows over JSON. Requests address
// registered types by name and carry attribute values as a flat string map.
type AuthHandler struct {
	engine   *engine.Engine
	schemas  *schema.Registry
	notifier Notifier
	logger   *slog.Logger
}

func NewAuthHandler(eng *engine.Engine, schemas *schema.Registry, notifier Notifier, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{engine: eng, schemas: schemas, notifier: notifier, logger: logger}
}

type recordRequest struct {
	Type        string            `json:"type"`
	Attributes  map[string]string `json:"attributes"`
	NewPassword string            `json:"new_password,omitempty"`
}

// decodeRecord parses the request body and materializes a record of the
// addressed type, populating only declared attributes. Unknown attribute
// names are rejected rather than dropped.
func (h *AuthHandler) decodeRecord(r *http.Request) (*schema.Schema, any, *recordRequest, error) {
	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, nil, nil, dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	if req.Type == "" {
		return nil, nil, nil, dErrors.New(dErrors.CodeBadRequest, "type is required")
	}
	sch, ok := h.schemas.ByName(req.Type)
	if !ok {
		return nil, nil, nil, dErrors.New(dErrors.CodeNotFound, "unknown type")
	}

	declared := make(map[string]schema.Field)
	for _, f := range sch.Columns() {
		declared[f.Name] = f
	}

	rec := sch.New()
	for name, value := range req.Attributes {
		f, ok := declared[name]
		if !ok {
			return nil, nil, nil, dErrors.New(dErrors.CodeBadRequest, "unknown attribute: "+name)
		}
		f.Set(rec, value)
	}
	return sch, rec, &req, nil
}

// renderAttributes serializes a record for responses, omitting the password
// envelope and both token fields.
func renderAttributes(sch *schema.Schema, rec any) map[string]string {
	secret := make(map[string]bool)
	if pf := sch.PasswordField(); pf != nil {
		secret[pf.Name] = true
	}
	if vf := sch.VerificationTokenField(); vf != nil {
		secret[vf.Name] = true
	}
	if rf := sch.ResetTokenField(); rf != nil {
		secret[rf.Name] = true
	}

	out := make(map[string]string)
	for _, f := range sch.Columns() {
		if secret[f.Name] {
			continue
		}
		out[f.Name] = f.Get(rec)
	}
	return out
}

const (
	notifyVerification  = "verification"
	notifyPasswordReset = "password_reset"
)

func (h *AuthHandler) notify(ctx context.Context, rec any, kind string) {
	if h.notifier == nil {
		return
	}
	var err error
	switch kind {
	case notifyVerification:
		err = h.notifier.SendVerification(ctx, rec)
	case notifyPasswordReset:
		err = h.notifier.SendPasswordReset(ctx, rec)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to send notification", "error", err, "kind", kind)
	}
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	sch, rec, _, err := h.decodeRecord(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	persisted, err := h.engine.Register(r.Context(), rec)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if vf := sch.VerificationTokenField(); vf != nil && vf.Get(persisted) != "" {
		h.notify(r.Context(), persisted, notifyVerification)
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"type":       sch.TypeName(),
		"attributes": renderAttributes(sch, persisted),
	})
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	sch, rec, _, err := h.decodeRecord(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	carrier := newCookieCarrier(w, r, h.engine.RevocationTTL())
	stored, artifacts, err := h.engine.Authenticate(r.Context(), rec, carrier)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"type":       sch.TypeName(),
		"session_id": artifacts.SessionID,
		"attributes": renderAttributes(sch, stored),
	})
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	carrier := newCookieCarrier(w, r, h.engine.RevocationTTL())
	if err := h.engine.Logout(r.Context(), carrier); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	sch, rec, _, err := h.decodeRecord(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	updated, err := h.engine.ConfirmVerification(r.Context(), rec)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"type":       sch.TypeName(),
		"attributes": renderAttributes(sch, updated),
	})
}

// handlePasswordReset drives both phases: a body without new_password
// requests a reset token, one with it confirms the reset.
func (h *AuthHandler) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	sch, rec, req, err := h.decodeRecord(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	updated, err := h.engine.UpdatePassword(r.Context(), rec, req.NewPassword)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if req.NewPassword == "" {
		h.notify(r.Context(), updated, notifyPasswordReset)
		status = http.StatusAccepted
	}
	httputil.WriteJSON(w, status, map[string]any{
		"type":       sch.TypeName(),
		"attributes": renderAttributes(sch, updated),
	})
}
