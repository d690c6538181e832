package augment

import "errors"

// Precondition failures. Each is returned wrapped with the offending array key
// and value; test with errors.Is.
var (
	// ErrConfigurationUnsupported: z-section-wise augmentation of more than one array.
	ErrConfigurationUnsupported = errors.New("configuration unsupported")
	// ErrDimensionality: z-section-wise augmentation of an array that is not 3D.
	ErrDimensionality = errors.New("unexpected dimensionality")
	// ErrDType: the buffer does not hold the sample type the stage needs.
	ErrDType = errors.New("unsupported dtype")
	// ErrRange: input values outside [0, 1].
	ErrRange = errors.New("value out of range")
	// ErrSpecMismatch: the ArraySpec and the buffer disagree on the number of z-sections.
	ErrSpecMismatch = errors.New("spec does not match buffer")
)
