package memutils

import (
	cerrors "github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint
}

func CheckPow2[T Number](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

// DivideRoundingUp returns the number of whole units of size divisor needed to hold value
func DivideRoundingUp(value int, divisor int) int {
	return (value + divisor - 1) / divisor
}
