package signing

import "errors"

var (
	// ErrBadSignature is the only outcome callers see for a rejected
	// request object.
	ErrBadSignature = errors.New("signing: bad signature")
	// ErrSigningFailed means a response could not be signed.
	ErrSigningFailed = errors.New("signing: signing failed")

	errUnknownKeyID = errors.New("signing: unknown kid")
)
