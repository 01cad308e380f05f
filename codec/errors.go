package codec

import "errors"

var (
	errOverrun           = errors.New("codec: slot capacity exceeded")
	errShortHeader       = errors.New("codec: buffer too short for header")
	errCursorMismatch    = errors.New("codec: decode cursor did not match bytes_used")
	errUnterminatedField = errors.New("codec: unterminated struct field name")
)
