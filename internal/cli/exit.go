package cli

import "fmt"

// Exit codes returned through ExitError.
const (
	ExitConfig     = 2
	ExitRunFailure = 3
)

// ExitError carries the process exit code main should use.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

func exitError(code int, format string, args ...any) *ExitError {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}
