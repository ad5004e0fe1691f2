package jwtx

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedToken is returned when a token is not three dot-separated
	// segments or its payload cannot be decoded into a claim record.
	ErrMalformedToken = errors.New("jwtx: malformed token")

	// ErrMissingExpiration is returned when the payload has no usable "exp"
	// claim. It wraps ErrMalformedToken.
	ErrMissingExpiration = fmt.Errorf("%w: missing exp claim", ErrMalformedToken)
)
