package auth

import "errors"

// Token validation failures. The HTTP layer maps all of them to 401.
var (
	ErrInvalidToken     = errors.New("invalid authentication token")
	ErrExpiredToken     = errors.New("authentication token has expired")
	ErrTokenNotYetValid = errors.New("authentication token not yet valid")
	ErrMissingToken     = errors.New("authentication token is missing")

	// ErrWeakSecret rejects HMAC secrets shorter than 32 characters.
	ErrWeakSecret = errors.New("jwt secret must be at least 32 characters")
)
