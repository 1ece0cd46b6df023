package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// ErrOutOfMemory is returned when a suballocator has no free run large enough to satisfy a request.
// The allocator's state is unchanged when it is returned.
var ErrOutOfMemory error = errors.New("out of pool memory")

// ErrIncompatible is returned when a resource's memory requirements cannot be satisfied by the memory
// type that backs a pool
var ErrIncompatible error = errors.New("memory requirements are incompatible with the pool")

// ErrUnsupported is returned by operations that a particular resource kind cannot perform
var ErrUnsupported error = errors.New("operation not supported")
