package oerror

import "fmt"

// PanicError wraps a value recovered from a panic inside an action so that it can be
// returned to the caller that was waiting on the action.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("action panicked: %v", e.Value)
}

// Unwrap returns the recovered value if it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
