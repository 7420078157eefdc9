package indicator

import "errors"

// ErrInsufficientData is returned when a calculator is given fewer bars than
// it needs to produce a first value.
var ErrInsufficientData = errors.New("indicator: insufficient bars")
