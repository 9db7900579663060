package amounts

import "errors"

var (
	// ErrInvalidNumber is returned if the raw input does not parse as a
	// positive real number.
	ErrInvalidNumber = errors.New("amount is not a valid number")

	// ErrAmountNegative is returned if the converted amount ends up below
	// zero. This can only arise from conversion artifacts since negative
	// inputs already fail with ErrInvalidNumber.
	ErrAmountNegative = errors.New("amount is negative")

	// ErrAmountTooLarge is returned if the converted amount exceeds the
	// total number of satoshis that can ever exist.
	ErrAmountTooLarge = errors.New("amount exceeds total bitcoin supply")
)
