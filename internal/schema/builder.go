package schema

import (
	"fmt"
	"reflect"

	"authgate/internal/hash"
)

// Builder accumulates role declarations until Build freezes them into a
// Registry. Not safe for concurrent use; registration is a single-threaded
// startup concern.
type Builder struct {
	decls map[reflect.Type]*decl
	order []reflect.Type
}

type decl struct {
	schema    Schema
	passwords int
}

func NewBuilder() *Builder {
	return &Builder{decls: make(map[reflect.Type]*decl)}
}

// Option declares one role on the type being registered.
type Option[T any] func(*decl)

// Register declares the roles of type T, persisted in the given table.
// A registration with zero role options is skipped silently, matching the
// behavior of types that carry no markers.
func Register[T any](b *Builder, table string, opts ...Option[T]) {
	if len(opts) == 0 {
		return
	}
	key := reflect.TypeFor[*T]()
	d, ok := b.decls[key]
	if !ok {
		d = &decl{schema: Schema{
			typeName: reflect.TypeFor[T]().Name(),
			table:    table,
			factory:  func() any { return new(T) },
		}}
		b.decls[key] = d
		b.order = append(b.order, key)
	}
	for _, opt := range opts {
		opt(d)
	}
}

// NewField builds a Field from a pointer-returning accessor, giving the
// engine both read and write access without reflection.
func NewField[T any](name string, ptr func(*T) *string) Field {
	return Field{
		Name: name,
		Get: func(rec any) string {
			if v, ok := rec.(*T); ok {
				return *ptr(v)
			}
			return ""
		},
		Set: func(rec any, value string) {
			if v, ok := rec.(*T); ok {
				*ptr(v) = value
			}
		},
	}
}

// Identity marks a field compared during login lookup.
func Identity[T any](name string, ptr func(*T) *string) Option[T] {
	f := NewField(name, ptr)
	return func(d *decl) {
		d.schema.identity = append(d.schema.identity, f)
	}
}

// Password marks the single password field and its hash algorithm.
func Password[T any](name string, algorithm hash.Algorithm, ptr func(*T) *string) Option[T] {
	f := NewField(name, ptr)
	return func(d *decl) {
		d.passwords++
		d.schema.password = &f
		d.schema.passAlg = algorithm
	}
}

// Unique marks a field checked for duplicates at registration.
func Unique[T any](name string, ptr func(*T) *string) Option[T] {
	f := NewField(name, ptr)
	return func(d *decl) {
		d.schema.unique = append(d.schema.unique, f)
	}
}

// TokenClaim emits the field into bearer tokens under claimName.
func TokenClaim[T any](name, claimName string, ptr func(*T) *string) Option[T] {
	f := NewField(name, ptr)
	return func(d *decl) {
		d.schema.claims = append(d.schema.claims, Claim{Name: claimName, Field: f})
	}
}

// VerificationToken marks the email verification token field.
func VerificationToken[T any](name string, ptr func(*T) *string) Option[T] {
	f := NewField(name, ptr)
	return func(d *decl) {
		d.schema.verificationToken = &f
	}
}

// ResetToken marks the password reset token field.
func ResetToken[T any](name string, ptr func(*T) *string) Option[T] {
	f := NewField(name, ptr)
	return func(d *decl) {
		d.schema.resetToken = &f
	}
}

// RequireEmailVerification opts the type into the verification state machine.
func RequireEmailVerification[T any]() Option[T] {
	return func(d *decl) {
		d.schema.requiresVerification = true
	}
}

// CacheKey marks the field used to key read-side cache entries.
func CacheKey[T any](name string, ptr func(*T) *string) Option[T] {
	f := NewField(name, ptr)
	return func(d *decl) {
		d.schema.cacheKey = &f
	}
}

// Build validates every declaration and returns the immutable registry.
// Violations are configuration errors and fail startup.
func (b *Builder) Build() (*Registry, error) {
	reg := &Registry{
		byType: make(map[reflect.Type]*Schema, len(b.decls)),
		byName: make(map[string]*Schema, len(b.decls)),
	}
	for _, key := range b.order {
		d := b.decls[key]
		if d.passwords > 1 {
			return nil, fmt.Errorf("schema: type %s declares %d password fields, at most one is allowed",
				d.schema.typeName, d.passwords)
		}
		if d.schema.password != nil && !d.schema.passAlg.Valid() {
			return nil, fmt.Errorf("schema: type %s declares unknown hash algorithm %q",
				d.schema.typeName, d.schema.passAlg)
		}
		if d.schema.requiresVerification {
			if d.schema.verificationToken == nil {
				return nil, fmt.Errorf("schema: type %s requires email verification but declares no verification token field",
					d.schema.typeName)
			}
			if d.schema.resetToken == nil {
				return nil, fmt.Errorf("schema: type %s requires email verification but declares no reset token field",
					d.schema.typeName)
			}
		}
		s := d.schema
		reg.byType[key] = &s
		reg.byName[s.typeName] = &s
	}
	return reg, nil
}
