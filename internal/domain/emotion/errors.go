package emotion

import "errors"

// ErrUnknownLabel reports a label outside the fixed emotion set.
var ErrUnknownLabel = errors.New("unknown emotion label")
