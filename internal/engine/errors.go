package engine

import (
	dErrors "authgate/pkg/domain-errors"
)

// Stable failure values. Credential and token mismatches are expected runtime
// outcomes and are always returned, never escalated. Lookup miss and password
// mismatch deliberately share ErrInvalidCredentials so callers cannot tell
// which part failed; do not split them.
var (
	ErrSchemaNotFound = dErrors.New(dErrors.CodeInternal, "no schema registered for type")

	ErrMissingPassword    = dErrors.New(dErrors.CodeBadRequest, "password field value cannot be empty")
	ErrInvalidCredentials = dErrors.New(dErrors.CodeUnauthorized, "invalid parameters provided")
	ErrAlreadyExists      = dErrors.New(dErrors.CodeConflict, "account with specified unique attributes already exists")
	ErrAccountNotVerified = dErrors.New(dErrors.CodeForbidden, "account must be verified first")

	ErrMissingSession = dErrors.New(dErrors.CodeUnauthorized, "session id was not found, account might not be logged in")

	ErrVerificationDisabled     = dErrors.New(dErrors.CodeInternal, "email verification must be enabled")
	ErrMissingVerificationField = dErrors.New(dErrors.CodeInternal, "type declares no verification token field")
	ErrTokenRequired            = dErrors.New(dErrors.CodeBadRequest, "verification token cannot be empty")
	ErrAccountDoesNotExist      = dErrors.New(dErrors.CodeNotFound, "account with specified token attributes does not exist")
	ErrAlreadyVerified          = dErrors.New(dErrors.CodeConflict, "account is already verified")

	ErrInvalidToken      = dErrors.New(dErrors.CodeUnauthorized, "invalid token provided")
	ErrTokenExpired      = dErrors.New(dErrors.CodeUnauthorized, "password reset token is expired")
	ErrMissingResetToken = dErrors.New(dErrors.CodeBadRequest, "password reset token cannot be empty")
)
