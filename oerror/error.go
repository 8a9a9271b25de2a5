package oerror

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned when a blocked caller is interrupted before its action completes.
	ErrCancelled = errors.New("action cancelled")
	// ErrUnknownEntity is returned when a handle was never registered or has been deregistered.
	ErrUnknownEntity = errors.New("unknown entity handle")
	// ErrInvalidSpeed is returned when a movement or turning speed is not strictly positive.
	ErrInvalidSpeed = errors.New("speed must be strictly positive")
	// ErrInvalidAnimationSpeed is returned when the simulation speed multiplier is not strictly positive.
	ErrInvalidAnimationSpeed = errors.New("animation speed must be positive")
	// ErrInvalidConfig is returned for configuration values that cannot be used.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrClosed is returned by components that were already shut down.
	ErrClosed = errors.New("closed")
	// ErrInvalidArgument is returned when an action is given a NaN or infinite distance, angle or target.
	ErrInvalidArgument = errors.New("argument must be a finite number")
	// ErrInvalidSize is returned when a pen size is not strictly positive.
	ErrInvalidSize = errors.New("size must be strictly positive")
	// ErrAlreadyFilling is returned when a fill shape is started while another one is in progress.
	ErrAlreadyFilling = errors.New("already filling a shape")
	// ErrNotFilling is returned when a fill shape is ended or abandoned without one being in progress.
	ErrNotFilling = errors.New("not filling a shape")
)

// TurtleError is a formatted error used for programming errors and invariant violations.
type TurtleError struct {
	Err string
}

// New returns a TurtleError with a message formatted from the arguments passed.
func New(format string, args ...any) *TurtleError {
	return &TurtleError{Err: fmt.Sprintf(format, args...)}
}

func (e *TurtleError) Error() string {
	return e.Err
}
