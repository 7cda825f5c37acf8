package auth

import "errors"

// Sentinel errors for the account-security core. Handlers match these with
// errors.Is and turn them into flash messages; none of them should escape
// the web boundary as an unhandled fault.
var (
	ErrBadCredentials   = errors.New("invalid username or password")
	ErrAccountLocked    = errors.New("account is locked")
	ErrEmailUnconfirmed = errors.New("email address not confirmed")
	ErrCodeInvalid      = errors.New("invalid verification code")

	ErrInvalidRole     = errors.New("invalid role")
	ErrOwnerProtected  = errors.New("owner role can only be changed by the owner itself")
	ErrLastOwner       = errors.New("at least one owner must remain")
	ErrOwnerAssignment = errors.New("only an owner may assign the owner role")
)
