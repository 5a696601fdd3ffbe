package main

import (
	"authgate/internal/hash"
	"authgate/internal/schema"
)

// User is the account type this deployment authenticates. Field roles are
// declared below; the engine only ever touches them through the registry.
type User struct {
	Email              string `json:"Email"`
	Username           string `json:"Username"`
	Password           string `json:"-"`
	VerificationToken  string `json:"-"`
	PasswordResetToken string `json:"-"`
}

// buildRegistry declares the deployment's record types. Adding a type here is
// the only step needed to put it under the engine's control.
func buildRegistry() (*schema.Registry, error) {
	b := schema.NewBuilder()

	schema.Register(b, "users",
		schema.Identity("Email", func(u *User) *string { return &u.Email }),
		schema.Identity("Username", func(u *User) *string { return &u.Username }),
		schema.Password("Password", hash.PBKDF2, func(u *User) *string { return &u.Password }),
		schema.Unique("Email", func(u *User) *string { return &u.Email }),
		schema.Unique("Username", func(u *User) *string { return &u.Username }),
		schema.TokenClaim("Email", "email", func(u *User) *string { return &u.Email }),
		schema.TokenClaim("Username", "preferred_username", func(u *User) *string { return &u.Username }),
		schema.VerificationToken("VerificationToken", func(u *User) *string { return &u.VerificationToken }),
		schema.ResetToken("PasswordResetToken", func(u *User) *string { return &u.PasswordResetToken }),
		schema.RequireEmailVerification[User](),
		schema.CacheKey("Username", func(u *User) *string { return &u.Username }),
	)

	return b.Build()
}
