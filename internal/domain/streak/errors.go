package streak

import "errors"

// ErrInvalidOption is returned by Validate for out-of-range settings.
var ErrInvalidOption = errors.New("invalid evaluator option")
