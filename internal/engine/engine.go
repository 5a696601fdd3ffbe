// Package engine orchestrates the authentication flows over schema-declared
// record types: registration, login, logout, email verification, and the
// two-phase password reset. The engine holds no per-request state; the schema
// registry is immutable after startup and every mutable collaborator is
// injected.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"authgate/internal/audit"
	"authgate/internal/hash"
	"authgate/internal/platform/metrics"
	"authgate/internal/schema"
	"authgate/internal/session"
	"authgate/internal/store"
	"authgate/internal/token"
	dErrors "authgate/pkg/domain-errors"
	"authgate/pkg/platform/sentinel"
)

// resetTokenValidity is the window embedded into reset tokens at request
// time. The confirm phase honors the embedded expiry, not this constant, so
// in-flight tokens keep their original deadline across config changes.
const resetTokenValidity = 900 * time.Second

// Engine drives the authentication state machines. Safe for concurrent use.
type Engine struct {
	schemas  *schema.Registry
	records  store.RecordStore
	hasher   *hash.Service
	issuer   *token.Issuer
	denylist session.InvalidationStore

	logger  *slog.Logger
	auditor *audit.Publisher
	metrics *metrics.Metrics

	emailVerification bool
	revocationTTL     time.Duration
	clock             func() time.Time
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithAudit wires the audit publisher; without it events are skipped.
func WithAudit(p *audit.Publisher) Option {
	return func(e *Engine) { e.auditor = p }
}

// WithMetrics wires Prometheus counters; without it counting is skipped.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithEmailVerification toggles the global verification feature. Per-type
// opt-in still comes from the schema.
func WithEmailVerification(enabled bool) Option {
	return func(e *Engine) { e.emailVerification = enabled }
}

// WithRevocationTTL overrides the denylist retention window.
func WithRevocationTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.revocationTTL = ttl
		}
	}
}

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

func New(
	schemas *schema.Registry,
	records store.RecordStore,
	hasher *hash.Service,
	issuer *token.Issuer,
	denylist session.InvalidationStore,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		schemas:       schemas,
		records:       records,
		hasher:        hasher,
		issuer:        issuer,
		denylist:      denylist,
		logger:        logger,
		revocationTTL: 15 * time.Minute,
		clock:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// verificationEnabled reports whether the verification state machine applies
// to this type: the global switch and the per-type opt-in must both be on.
func (e *Engine) verificationEnabled(s *schema.Schema) bool {
	return e.emailVerification && s.RequiresVerification()
}

// matchesFor builds equality predicates from the record's non-empty values of
// the given fields. Empty inputs are not used as filters.
func matchesFor(fields []schema.Field, rec any) []store.Match {
	var matches []store.Match
	for _, f := range fields {
		if v := f.Get(rec); v != "" {
			matches = append(matches, store.Match{Field: f, Value: v})
		}
	}
	return matches
}

// subjectOf extracts a loggable identifier from the record: the first
// non-empty identity field, falling back to the first unique field. Never a
// password or token value.
func subjectOf(s *schema.Schema, rec any) string {
	for _, f := range s.IdentityFields() {
		if v := f.Get(rec); v != "" {
			return v
		}
	}
	for _, f := range s.UniqueFields() {
		if v := f.Get(rec); v != "" {
			return v
		}
	}
	return ""
}

func (e *Engine) logAudit(ctx context.Context, action audit.Action, s *schema.Schema, rec any, reason string) {
	if e.auditor == nil {
		return
	}
	event := audit.Event{
		Action:     action,
		RecordType: s.TypeName(),
		Subject:    subjectOf(s, rec),
		Reason:     reason,
	}
	if err := e.auditor.Emit(ctx, event); err != nil {
		e.logger.ErrorContext(ctx, "failed to emit audit event", "error", err, "action", action)
	}
}

// Register hashes the password, rejects duplicates on unique fields, stamps a
// fresh verification token when the type requires one, and persists the
// record. The mutated record is returned on success; on failure nothing is
// persisted.
func (e *Engine) Register(ctx context.Context, rec any) (any, error) {
	s, ok := e.schemas.For(rec)
	if !ok {
		return nil, ErrSchemaNotFound
	}

	if pf := s.PasswordField(); pf != nil {
		plaintext := pf.Get(rec)
		if plaintext == "" {
			return nil, ErrMissingPassword
		}
		envelope, err := e.hasher.Hash(plaintext, s.PasswordAlgorithm())
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
		}
		pf.Set(rec, envelope)
	}

	if matches := matchesFor(s.UniqueFields(), rec); len(matches) > 0 {
		_, err := e.records.FindOne(ctx, s, matches)
		switch {
		case err == nil:
			return nil, ErrAlreadyExists
		case errors.Is(err, sentinel.ErrNotFound):
			// No duplicate; proceed.
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check unique fields")
		}
	}

	if e.verificationEnabled(s) {
		vf := s.VerificationTokenField()
		if vf == nil {
			return nil, ErrMissingVerificationField
		}
		vf.Set(rec, uuid.NewString())
	}

	persisted, err := e.records.Insert(ctx, s, rec)
	if err != nil {
		// The store's own uniqueness constraint closes the window between the
		// check above and this insert under concurrent registration.
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, ErrAlreadyExists
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist record")
	}

	if e.metrics != nil {
		e.metrics.Registrations.Inc()
	}
	e.logAudit(ctx, audit.ActionUserRegistered, s, persisted, "")
	return persisted, nil
}

// Authenticate resolves the stored record by the supplied identity fields,
// verifies the password, enforces the verification state, and issues session
// artifacts onto the carrier. Lookup miss and password mismatch return the
// same failure.
func (e *Engine) Authenticate(ctx context.Context, rec any, carrier token.Carrier) (any, token.Artifacts, error) {
	s, ok := e.schemas.For(rec)
	if !ok {
		return nil, token.Artifacts{}, ErrSchemaNotFound
	}

	stored, err := e.lookupByIdentity(ctx, s, rec)
	if err != nil {
		e.observeLogin("invalid_credentials")
		e.logAudit(ctx, audit.ActionLoginFailed, s, rec, "unknown account")
		return nil, token.Artifacts{}, err
	}

	if pf := s.PasswordField(); pf != nil {
		plaintext := pf.Get(rec)
		storedHash := pf.Get(stored)
		if plaintext == "" || storedHash == "" {
			return nil, token.Artifacts{}, ErrMissingPassword
		}
		if !e.hasher.Verify(s.PasswordAlgorithm(), plaintext, storedHash) {
			e.observeLogin("invalid_credentials")
			e.logAudit(ctx, audit.ActionLoginFailed, s, rec, "bad credentials")
			return nil, token.Artifacts{}, ErrInvalidCredentials
		}
	}

	if e.verificationEnabled(s) {
		vf := s.VerificationTokenField()
		if vf == nil || vf.Get(stored) != "" {
			e.observeLogin("not_verified")
			e.logAudit(ctx, audit.ActionLoginFailed, s, rec, "account not verified")
			return nil, token.Artifacts{}, ErrAccountNotVerified
		}
	}

	artifacts, issued, err := e.issuer.Issue(s, stored, carrier)
	if err != nil {
		return nil, token.Artifacts{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue session artifacts")
	}
	if !issued {
		e.logger.WarnContext(ctx, "no claim fields declared, session not established",
			"type", s.TypeName(),
		)
	}

	e.observeLogin("success")
	e.logAudit(ctx, audit.ActionLoginSucceeded, s, stored, "")
	return stored, artifacts, nil
}

// Logout clears the artifact triple from the carrier and denylists the
// presented session id. The revocation write completes before Logout
// returns. Repeating a logout with the same id is harmless.
func (e *Engine) Logout(ctx context.Context, carrier token.Carrier) error {
	sessionID := carrier.Get(token.ArtifactSessionID)
	if sessionID == "" {
		return ErrMissingSession
	}

	token.ClearArtifacts(carrier)

	if err := e.denylist.Revoke(ctx, sessionID, e.revocationTTL); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke session")
	}

	if e.metrics != nil {
		e.metrics.SessionsRevoked.Inc()
	}
	if e.auditor != nil {
		_ = e.auditor.Emit(ctx, audit.Event{
			Action:  audit.ActionSessionRevoked,
			Subject: sessionID,
		})
	}
	return nil
}

// ConfirmVerification consumes the verification token carried on the input
// record: the matching stored record's token is cleared, transitioning the
// account to verified. The transition is one-way; the token is never
// reissued here.
func (e *Engine) ConfirmVerification(ctx context.Context, rec any) (any, error) {
	if !e.emailVerification {
		return nil, ErrVerificationDisabled
	}
	s, ok := e.schemas.For(rec)
	if !ok {
		return nil, ErrSchemaNotFound
	}
	vf := s.VerificationTokenField()
	if vf == nil {
		return nil, ErrMissingVerificationField
	}

	supplied := vf.Get(rec)
	if supplied == "" {
		return nil, ErrTokenRequired
	}

	stored, err := e.records.FindOne(ctx, s, []store.Match{{Field: *vf, Value: supplied}})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, ErrAccountDoesNotExist
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up record")
	}

	switch storedToken := vf.Get(stored); {
	case storedToken == "":
		return nil, ErrAlreadyVerified
	case storedToken != supplied:
		return nil, ErrInvalidToken
	}

	vf.Set(stored, "")
	updated, err := e.records.Update(ctx, s, stored)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist verification")
	}

	e.logAudit(ctx, audit.ActionAccountVerified, s, updated, "")
	return updated, nil
}

// UpdatePassword runs the two-phase reset flow. With an empty newPassword it
// is the request phase: a reset token embedding an absolute expiry is stored
// on the record and the record returned so the caller can mail the token.
// With a newPassword it is the confirm phase: the supplied token must equal
// the stored one and not be past its embedded expiry; the password is then
// replaced and the token cleared before returning, making it single-use.
func (e *Engine) UpdatePassword(ctx context.Context, rec any, newPassword string) (any, error) {
	s, ok := e.schemas.For(rec)
	if !ok {
		return nil, ErrSchemaNotFound
	}
	rf := s.ResetTokenField()
	if rf == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "type declares no reset token field")
	}

	stored, err := e.lookupByIdentity(ctx, s, rec)
	if err != nil {
		return nil, err
	}

	if newPassword == "" {
		expiry := e.clock().Add(resetTokenValidity).Unix()
		rf.Set(stored, strconv.FormatInt(expiry, 10)+":"+uuid.NewString())
		updated, err := e.records.Update(ctx, s, stored)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist reset token")
		}
		e.logAudit(ctx, audit.ActionPasswordResetRequested, s, updated, "")
		return updated, nil
	}

	supplied := rf.Get(rec)
	storedToken := rf.Get(stored)
	if supplied == "" || storedToken == "" {
		return nil, ErrMissingResetToken
	}

	// Boundary is inclusive: a confirm at exactly the embedded epoch second
	// succeeds, one second later it fails.
	expiry, _ := strconv.ParseInt(strings.SplitN(storedToken, ":", 2)[0], 10, 64)
	if e.clock().Unix() > expiry {
		return nil, ErrTokenExpired
	}
	if supplied != storedToken {
		return nil, ErrInvalidToken
	}

	pf := s.PasswordField()
	if pf == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "type declares no password field")
	}
	envelope, err := e.hasher.Hash(newPassword, s.PasswordAlgorithm())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	pf.Set(stored, envelope)
	rf.Set(stored, "")

	updated, err := e.records.Update(ctx, s, stored)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist new password")
	}

	e.logAudit(ctx, audit.ActionPasswordResetConfirmed, s, updated, "")
	return updated, nil
}

func (e *Engine) lookupByIdentity(ctx context.Context, s *schema.Schema, rec any) (any, error) {
	matches := matchesFor(s.IdentityFields(), rec)
	if len(matches) == 0 {
		return nil, ErrInvalidCredentials
	}
	stored, err := e.records.FindOne(ctx, s, matches)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up record")
	}
	return stored, nil
}

func (e *Engine) observeLogin(result string) {
	if e.metrics != nil {
		e.metrics.ObserveLogin(result)
	}
}

// RevocationTTL exposes the denylist retention for transports that surface
// it (e.g. cookie max-age hints).
func (e *Engine) RevocationTTL() time.Duration {
	return e.revocationTTL
}
