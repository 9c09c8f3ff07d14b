package auth

import "github.com/google/uuid"

// CodeGenerator produces opaque single-use codes: verification codes,
// password reset tokens and refresh session ids.
type CodeGenerator interface {
	NewCode() string
}

// UUIDCodes returns random (version 4) UUID strings.
type UUIDCodes struct{}

func (UUIDCodes) NewCode() string {
	return uuid.NewString()
}
