// Package schema maps application types onto authentication roles.
//
// Applications declare, once at startup, which fields of their own record
// types identify a user, hold the password, must stay unique, feed token
// claims, or carry the verification and reset tokens. The engine never sees
// the concrete types; it reads and writes fields exclusively through the
// accessors captured here. Declarations are explicit rather than scanned:
// roles are enumerated through the builder and frozen by Build, so no field
// reflection happens at request time.
package schema

import (
	"reflect"

	"authgate/internal/hash"
)

// Field is one schema-declared field: its storage name plus typed accessors
// erased to any. Get returns the zero string when handed a foreign type.
type Field struct {
	Name string
	Get  func(rec any) string
	Set  func(rec any, value string)
}

// Claim maps a schema field onto a named bearer token claim.
type Claim struct {
	Name  string
	Field Field
}

// Schema is the immutable role map for one registered type.
type Schema struct {
	typeName string
	table    string
	factory  func() any

	identity []Field
	password *Field
	passAlg  hash.Algorithm
	unique   []Field
	claims   []Claim

	verificationToken    *Field
	resetToken           *Field
	requiresVerification bool

	cacheKey *Field
}

// TypeName returns the registered Go type name, used for cache key prefixes
// and in-memory store bucketing.
func (s *Schema) TypeName() string { return s.typeName }

// Table returns the backing relation for SQL-based record stores.
func (s *Schema) Table() string { return s.table }

// New constructs a zeroed record of the registered type, for stores that
// materialize rows back into application values.
func (s *Schema) New() any { return s.factory() }

// IdentityFields are compared during login lookup.
func (s *Schema) IdentityFields() []Field { return s.identity }

// PasswordField returns the single password field, or nil when the type has
// none.
func (s *Schema) PasswordField() *Field { return s.password }

// PasswordAlgorithm returns the hash algorithm declared for the password
// field. Only meaningful when PasswordField is non-nil.
func (s *Schema) PasswordAlgorithm() hash.Algorithm { return s.passAlg }

// UniqueFields are checked for pre-existing duplicates at registration.
func (s *Schema) UniqueFields() []Field { return s.unique }

// Claims enumerates the field-to-claim mappings emitted into bearer tokens.
func (s *Schema) Claims() []Claim { return s.claims }

// VerificationTokenField carries the email verification token; non-empty
// means unverified.
func (s *Schema) VerificationTokenField() *Field { return s.verificationToken }

// ResetTokenField carries the password reset token.
func (s *Schema) ResetTokenField() *Field { return s.resetToken }

// RequiresVerification reports whether the type opted into email
// verification.
func (s *Schema) RequiresVerification() bool { return s.requiresVerification }

// CacheKeyField returns the read-side cache key field, or nil when the type
// is not cached.
func (s *Schema) CacheKeyField() *Field { return s.cacheKey }

// Columns returns every declared field exactly once, in declaration order.
// SQL stores persist this set.
func (s *Schema) Columns() []Field {
	seen := make(map[string]bool)
	var cols []Field
	add := func(f Field) {
		if !seen[f.Name] {
			seen[f.Name] = true
			cols = append(cols, f)
		}
	}
	for _, f := range s.identity {
		add(f)
	}
	if s.password != nil {
		add(*s.password)
	}
	for _, f := range s.unique {
		add(f)
	}
	for _, c := range s.claims {
		add(c.Field)
	}
	if s.verificationToken != nil {
		add(*s.verificationToken)
	}
	if s.resetToken != nil {
		add(*s.resetToken)
	}
	return cols
}

// Registry is the process-lifetime, read-only lookup of schemas by type
// identity. Built once at startup; safe for concurrent reads without locking.
type Registry struct {
	byType map[reflect.Type]*Schema
	byName map[string]*Schema
}

// For returns the schema for the record's type. Records are always passed as
// pointers; reflect is used only as the map key, never for field access.
func (r *Registry) For(rec any) (*Schema, bool) {
	s, ok := r.byType[reflect.TypeOf(rec)]
	return s, ok
}

// ByName looks a schema up by registered type name, for transports that
// address types as strings.
func (r *Registry) ByName(name string) (*Schema, bool) {
	s, ok := r.byName[name]
	return s, ok
}
