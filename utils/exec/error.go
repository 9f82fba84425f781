package exec

import (
	"errors"
)

type exitCoder interface {
	ExitCode() int
}

// ExitStatus returns the exit code carried by err, *exec.ExitError and
// wrapped errors included.
func ExitStatus(err error) (int, bool) {
	var coder exitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode(), true
	}
	return 0, false
}
