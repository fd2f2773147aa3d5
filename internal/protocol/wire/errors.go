package wire

import "errors"

var (
	ErrNotEnoughBytes = errors.New("wire: not enough bytes")
	ErrValueTooLarge  = errors.New("wire: value too large")
	ErrMalformed      = errors.New("wire: malformed value")
)
