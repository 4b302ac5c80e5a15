package audio

import "errors"

var (
	// ErrFormatMismatch is returned when concatenation inputs disagree on format.
	ErrFormatMismatch = errors.New("audio format mismatch")
	// ErrSampleRateMismatch is returned when concatenation inputs disagree on sample rate.
	ErrSampleRateMismatch = errors.New("audio sample rate mismatch")
)
