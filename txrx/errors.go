package txrx

import "errors"

// Sentinel errors for the distinguishable failure kinds named in §7.
var (
	ErrRingFull       = errors.New("txrx: ring full")
	ErrMalformedFrame = errors.New("txrx: malformed frame")
	ErrRadioPrepare   = errors.New("txrx: radio prepare failed")
)
