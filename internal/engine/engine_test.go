package engine

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authgate/internal/audit"
	"authgate/internal/hash"
	"authgate/internal/schema"
	"authgate/internal/session"
	"authgate/internal/store"
	"authgate/internal/token"
)

type account struct {
	Email              string
	Username           string
	Password           string
	VerificationToken  string
	PasswordResetToken string
}

type apiClient struct {
	ClientID string
}

type mapCarrier struct {
	values map[string]string
}

func newMapCarrier() *mapCarrier { return &mapCarrier{values: make(map[string]string)} }

func (c *mapCarrier) Get(name string) string         { return c.values[name] }
func (c *mapCarrier) Set(name, value string, _ bool) { c.values[name] = value }
func (c *mapCarrier) Clear(name string)              { delete(c.values, name) }

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	b := schema.NewBuilder()
	schema.Register(b, "accounts",
		schema.Identity("Email", func(a *account) *string { return &a.Email }),
		schema.Identity("Username", func(a *account) *string { return &a.Username }),
		schema.Password("Password", hash.PBKDF2, func(a *account) *string { return &a.Password }),
		schema.Unique("Email", func(a *account) *string { return &a.Email }),
		schema.TokenClaim("Email", "email", func(a *account) *string { return &a.Email }),
		schema.VerificationToken("VerificationToken", func(a *account) *string { return &a.VerificationToken }),
		schema.ResetToken("PasswordResetToken", func(a *account) *string { return &a.PasswordResetToken }),
		schema.RequireEmailVerification[account](),
	)
	schema.Register(b, "api_clients",
		schema.Identity("ClientID", func(c *apiClient) *string { return &c.ClientID }),
	)
	reg, err := b.Build()
	require.NoError(t, err)
	return reg
}

type fixture struct {
	engine  *Engine
	records *store.InMemoryStore
	denial  *session.InMemoryStore
	auditor *audit.Publisher
	events  *audit.InMemoryStore
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	records := store.NewInMemoryStore()
	denial := session.NewInMemoryStore()
	events := audit.NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditor := audit.NewPublisher(events, logger)
	issuer := token.NewIssuer("test-key", "test-issuer", "test-audience", time.Hour)

	opts = append([]Option{WithAudit(auditor)}, opts...)
	eng := New(testRegistry(t), records, hash.NewService(), issuer, denial, logger, opts...)
	return &fixture{engine: eng, records: records, denial: denial, auditor: auditor, events: events}
}

func (f *fixture) register(t *testing.T, rec *account) *account {
	t.Helper()
	persisted, err := f.engine.Register(context.Background(), rec)
	require.NoError(t, err)
	return persisted.(*account)
}

func Test_Register_HashesPassword(t *testing.T) {
	f := newFixture(t)

	stored := f.register(t, &account{Email: "a@example.com", Password: "hunter2"})

	assert.NotEqual(t, "hunter2", stored.Password)
	parts := strings.Split(stored.Password, ":")
	require.Len(t, parts, 3)
	assert.Equal(t, "1000", parts[0])
}

func Test_Register_EmptyPassword(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Register(context.Background(), &account{Email: "a@example.com"})
	require.ErrorIs(t, err, ErrMissingPassword)
}

func Test_Register_DuplicateUniqueField(t *testing.T) {
	f := newFixture(t)
	f.register(t, &account{Email: "a@example.com", Password: "hunter2"})

	_, err := f.engine.Register(context.Background(), &account{Email: "a@example.com", Password: "other"})
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func Test_Register_UnregisteredType(t *testing.T) {
	f := newFixture(t)

	type unknown struct{ X string }
	_, err := f.engine.Register(context.Background(), &unknown{})
	require.ErrorIs(t, err, ErrSchemaNotFound)
}

func Test_Register_VerificationDisabled_NoTokenStamped(t *testing.T) {
	f := newFixture(t)

	stored := f.register(t, &account{Email: "a@example.com", Password: "hunter2"})
	assert.Empty(t, stored.VerificationToken)
}

func Test_Register_VerificationEnabled_StampsToken(t *testing.T) {
	f := newFixture(t, WithEmailVerification(true))

	stored := f.register(t, &account{Email: "a@example.com", Password: "hunter2"})
	assert.NotEmpty(t, stored.VerificationToken)
}

func Test_Register_EmitsAuditEvent(t *testing.T) {
	f := newFixture(t)
	f.register(t, &account{Email: "a@example.com", Password: "hunter2"})

	events, err := f.events.List(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionUserRegistered, events[0].Action)
	assert.Equal(t, "account", events[0].RecordType)
	assert.Equal(t, "a@example.com", events[0].Subject)
}

func Test_Authenticate_Succeeds(t *testing.T) {
	f := newFixture(t)
	f.register(t, &account{Email: "a@example.com", Password: "hunter2"})
	carrier := newMapCarrier()

	stored, artifacts, err := f.engine.Authenticate(context.Background(),
		&account{Email: "a@example.com", Password: "hunter2"}, carrier)
	require.NoError(t, err)

	assert.Equal(t, "a@example.com", stored.(*account).Email)
	assert.NotEmpty(t, artifacts.SessionID)
	assert.NotEmpty(t, artifacts.BearerToken)
	assert.NotEmpty(t, artifacts.RefreshToken)
	assert.Equal(t, artifacts.SessionID, carrier.Get(token.ArtifactSessionID))
}

func Test_Authenticate_WrongPassword(t *testing.T) {
	f := newFixture(t)
	f.register(t, &account{Email: "a@example.com", Password: "hunter2"})

	_, _, err := f.engine.Authenticate(context.Background(),
		&account{Email: "a@example.com", Password: "hunter3"}, newMapCarrier())
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func Test_Authenticate_UnknownAndWrongPasswordIndistinguishable(t *testing.T) {
	f := newFixture(t)
	f.register(t, &account{Email: "a@example.com", Password: "hunter2"})
	ctx := context.Background()

	_, _, unknownErr := f.engine.Authenticate(ctx,
		&account{Email: "nobody@example.com", Password: "hunter2"}, newMapCarrier())
	_, _, wrongErr := f.engine.Authenticate(ctx,
		&account{Email: "a@example.com", Password: "wrong"}, newMapCarrier())

	require.Error(t, unknownErr)
	require.Error(t, wrongErr)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
	require.ErrorIs(t, unknownErr, ErrInvalidCredentials)
	require.ErrorIs(t, wrongErr, ErrInvalidCredentials)
}

func Test_Authenticate_NoIdentityValues(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.engine.Authenticate(context.Background(),
		&account{Password: "hunter2"}, newMapCarrier())
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func Test_Authenticate_SecondIdentityFieldAlsoWorks(t *testing.T) {
	f := newFixture(t)
	f.register(t, &account{Email: "a@example.com", Username: "ada", Password: "hunter2"})

	stored, _, err := f.engine.Authenticate(context.Background(),
		&account{Username: "ada", Password: "hunter2"}, newMapCarrier())
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", stored.(*account).Email)
}

func Test_Authenticate_UnverifiedAccountRejected(t *testing.T) {
	f := newFixture(t, WithEmailVerification(true))
	f.register(t, &account{Email: "a@example.com", Password: "hunter2"})

	_, _, err := f.engine.Authenticate(context.Background(),
		&account{Email: "a@example.com", Password: "hunter2"}, newMapCarrier())
	require.ErrorIs(t, err, ErrAccountNotVerified)
}

func Test_Authenticate_VerificationOffGloballyIgnoresOptIn(t *testing.T) {
	f := newFixture(t)
	stored := f.register(t, &account{Email: "a@example.com", Password: "hunter2"})
	// Simulate a token left over from a deployment that had verification on.
	stored.VerificationToken = "stale-token"

	_, _, err := f.engine.Authenticate(context.Background(),
		&account{Email: "a@example.com", Password: "hunter2"}, newMapCarrier())
	require.NoError(t, err)
}

func Test_Authenticate_PasswordlessTypeWithoutClaims(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.Register(ctx, &apiClient{ClientID: "client-1"})
	require.NoError(t, err)
	carrier := newMapCarrier()

	stored, artifacts, err := f.engine.Authenticate(ctx, &apiClient{ClientID: "client-1"}, carrier)
	require.NoError(t, err)
	assert.Equal(t, "client-1", stored.(*apiClient).ClientID)
	assert.Equal(t, token.Artifacts{}, artifacts)
	assert.Empty(t, carrier.values)
}

func Test_Logout_RevokesSession(t *testing.T) {
	f := newFixture(t)
	f.register(t, &account{Email: "a@example.com", Password: "hunter2"})
	carrier := newMapCarrier()
	_, artifacts, err := f.engine.Authenticate(context.Background(),
		&account{Email: "a@example.com", Password: "hunter2"}, carrier)
	require.NoError(t, err)

	require.NoError(t, f.engine.Logout(context.Background(), carrier))

	assert.Empty(t, carrier.values)
	revoked, err := f.denial.IsRevoked(context.Background(), artifacts.SessionID)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func Test_Logout_NoSession(t *testing.T) {
	f := newFixture(t)

	err := f.engine.Logout(context.Background(), newMapCarrier())
	require.ErrorIs(t, err, ErrMissingSession)
}

func Test_Logout_SecondCallMissingSession(t *testing.T) {
	f := newFixture(t)
	f.register(t, &account{Email: "a@example.com", Password: "hunter2"})
	carrier := newMapCarrier()
	_, _, err := f.engine.Authenticate(context.Background(),
		&account{Email: "a@example.com", Password: "hunter2"}, carrier)
	require.NoError(t, err)

	require.NoError(t, f.engine.Logout(context.Background(), carrier))
	err = f.engine.Logout(context.Background(), carrier)
	require.ErrorIs(t, err, ErrMissingSession)
}

func Test_ConfirmVerification_FullFlow(t *testing.T) {
	f := newFixture(t, WithEmailVerification(true))
	ctx := context.Background()
	stored := f.register(t, &account{Email: "a@example.com", Password: "hunter2"})
	tokenValue := stored.VerificationToken
	require.NotEmpty(t, tokenValue)

	updated, err := f.engine.ConfirmVerification(ctx, &account{VerificationToken: tokenValue})
	require.NoError(t, err)
	assert.Empty(t, updated.(*account).VerificationToken)

	_, _, err = f.engine.Authenticate(ctx,
		&account{Email: "a@example.com", Password: "hunter2"}, newMapCarrier())
	require.NoError(t, err)
}

func Test_ConfirmVerification_Disabled(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.ConfirmVerification(context.Background(), &account{VerificationToken: "x"})
	require.ErrorIs(t, err, ErrVerificationDisabled)
}

func Test_ConfirmVerification_EmptyToken(t *testing.T) {
	f := newFixture(t, WithEmailVerification(true))

	_, err := f.engine.ConfirmVerification(context.Background(), &account{})
	require.ErrorIs(t, err, ErrTokenRequired)
}

func Test_ConfirmVerification_UnknownToken(t *testing.T) {
	f := newFixture(t, WithEmailVerification(true))
	f.register(t, &account{Email: "a@example.com", Password: "hunter2"})

	_, err := f.engine.ConfirmVerification(context.Background(),
		&account{VerificationToken: "not-a-real-token"})
	require.ErrorIs(t, err, ErrAccountDoesNotExist)
}

func Test_ConfirmVerification_SecondConfirm(t *testing.T) {
	f := newFixture(t, WithEmailVerification(true))
	ctx := context.Background()
	stored := f.register(t, &account{Email: "a@example.com", Password: "hunter2"})
	tokenValue := stored.VerificationToken

	_, err := f.engine.ConfirmVerification(ctx, &account{VerificationToken: tokenValue})
	require.NoError(t, err)

	_, err = f.engine.ConfirmVerification(ctx, &account{VerificationToken: tokenValue})
	require.ErrorIs(t, err, ErrAccountDoesNotExist)
}

func Test_UpdatePassword_RequestPhase(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	f := newFixture(t, WithClock(func() time.Time { return now }))
	f.register(t, &account{Email: "a@example.com", Password: "hunter2"})

	updated, err := f.engine.UpdatePassword(context.Background(),
		&account{Email: "a@example.com"}, "")
	require.NoError(t, err)

	resetToken := updated.(*account).PasswordResetToken
	require.NotEmpty(t, resetToken)
	parts := strings.SplitN(resetToken, ":", 2)
	require.Len(t, parts, 2)
	expiry, err := strconv.ParseInt(parts[0], 10, 64)
	require.NoError(t, err)
	assert.Equal(t, now.Add(900*time.Second).Unix(), expiry)
	assert.NotEmpty(t, parts[1])
}

func Test_UpdatePassword_ConfirmPhase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, &account{Email: "a@example.com", Password: "hunter2"})

	requested, err := f.engine.UpdatePassword(ctx, &account{Email: "a@example.com"}, "")
	require.NoError(t, err)
	resetToken := requested.(*account).PasswordResetToken

	updated, err := f.engine.UpdatePassword(ctx,
		&account{Email: "a@example.com", PasswordResetToken: resetToken}, "correct horse")
	require.NoError(t, err)
	assert.Empty(t, updated.(*account).PasswordResetToken)

	_, _, err = f.engine.Authenticate(ctx,
		&account{Email: "a@example.com", Password: "correct horse"}, newMapCarrier())
	require.NoError(t, err)

	_, _, err = f.engine.Authenticate(ctx,
		&account{Email: "a@example.com", Password: "hunter2"}, newMapCarrier())
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func Test_UpdatePassword_TokenSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, &account{Email: "a@example.com", Password: "hunter2"})

	requested, err := f.engine.UpdatePassword(ctx, &account{Email: "a@example.com"}, "")
	require.NoError(t, err)
	resetToken := requested.(*account).PasswordResetToken

	_, err = f.engine.UpdatePassword(ctx,
		&account{Email: "a@example.com", PasswordResetToken: resetToken}, "first")
	require.NoError(t, err)

	_, err = f.engine.UpdatePassword(ctx,
		&account{Email: "a@example.com", PasswordResetToken: resetToken}, "second")
	require.ErrorIs(t, err, ErrMissingResetToken)
}

func Test_UpdatePassword_ExpiryBoundary(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	f := newFixture(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	f.register(t, &account{Email: "a@example.com", Password: "hunter2"})

	requested, err := f.engine.UpdatePassword(ctx, &account{Email: "a@example.com"}, "")
	require.NoError(t, err)
	resetToken := requested.(*account).PasswordResetToken

	// At exactly the embedded expiry second the token is still honored.
	now = now.Add(900 * time.Second)
	_, err = f.engine.UpdatePassword(ctx,
		&account{Email: "a@example.com", PasswordResetToken: resetToken}, "on the line")
	require.NoError(t, err)

	requested, err = f.engine.UpdatePassword(ctx, &account{Email: "a@example.com"}, "")
	require.NoError(t, err)
	resetToken = requested.(*account).PasswordResetToken

	now = now.Add(900*time.Second + time.Second)
	_, err = f.engine.UpdatePassword(ctx,
		&account{Email: "a@example.com", PasswordResetToken: resetToken}, "too late")
	require.ErrorIs(t, err, ErrTokenExpired)
}

func Test_UpdatePassword_WrongToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	f := newFixture(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	f.register(t, &account{Email: "a@example.com", Password: "hunter2"})

	_, err := f.engine.UpdatePassword(ctx, &account{Email: "a@example.com"}, "")
	require.NoError(t, err)

	forged := strconv.FormatInt(now.Add(900*time.Second).Unix(), 10) + ":forged-token"
	_, err = f.engine.UpdatePassword(ctx,
		&account{Email: "a@example.com", PasswordResetToken: forged}, "hijack")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func Test_UpdatePassword_ConfirmWithoutRequest(t *testing.T) {
	f := newFixture(t)
	f.register(t, &account{Email: "a@example.com", Password: "hunter2"})

	_, err := f.engine.UpdatePassword(context.Background(),
		&account{Email: "a@example.com", PasswordResetToken: "1700000900:x"}, "new")
	require.ErrorIs(t, err, ErrMissingResetToken)
}

func Test_UpdatePassword_UnknownAccount(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.UpdatePassword(context.Background(),
		&account{Email: "nobody@example.com"}, "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}
