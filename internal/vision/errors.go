package vision

import "errors"

var (
	ErrProviderUnavailable = errors.New("vision provider unavailable")
	ErrExtractionTimeout   = errors.New("vision extraction timeout")
	ErrInvalidResponse     = errors.New("vision provider returned invalid response")
)
