package assert

import "github.com/oomph-ac/turtle/oerror"

// IsTrue panics with a formatted *oerror.TurtleError if ok is false. It is used for programming
// errors that must never be silently continued from.
func IsTrue(ok bool, message string, args ...interface{}) {
	if !ok {
		panic(oerror.New(message, args...))
	}
}
