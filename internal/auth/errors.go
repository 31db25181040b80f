package auth

import "errors"

var (
	// ErrUnauthorized covers every token rejection: missing, inactive,
	// wrong scope, unbound certificate or an unreachable introspection server.
	ErrUnauthorized = errors.New("auth: unauthorized")
)
