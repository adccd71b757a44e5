package devices

import "github.com/pkg/errors"

// Errors reported by Resolve when the configured device topology cannot be
// reconciled. Resolve wraps them with the offending quantities; match them
// with errors.Is.
var (
	// ErrMalformedDeviceIndex reports a device list token that is not a
	// non-negative integer.
	ErrMalformedDeviceIndex = errors.New("malformed device index")

	// ErrDeviceCountMismatch reports a single-process device list whose
	// length differs from the configured device count.
	ErrDeviceCountMismatch = errors.New("device count mismatch")

	// ErrNotAMultiple reports a device list whose length is not a multiple
	// of the per-process device count.
	ErrNotAMultiple = errors.New("device list not a multiple of device count")

	// ErrTopologyShapeMismatch reports a device list that holds neither one
	// shared device set nor one set per process.
	ErrTopologyShapeMismatch = errors.New("device topology shape mismatch")
)
