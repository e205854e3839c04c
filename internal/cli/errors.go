package cli

import "errors"

// ErrUsage marks failures the user fixes by changing flags, the config file
// or the input documents. The binary exits with status 2 for them.
var ErrUsage = errors.New("cli usage error")

// usageError is a user-facing failure. cause keeps the underlying compiler or
// spec error reachable through errors.As.
type usageError struct {
	msg   string
	hint  string
	cause error
}

func newUsageError(msg string) error {
	return &usageError{msg: msg}
}

// wrapUsage reports cause as msg, followed by hint when one is given.
func wrapUsage(cause error, msg, hint string) error {
	return &usageError{msg: msg, hint: hint, cause: cause}
}

func (e *usageError) Error() string {
	if e.hint == "" {
		return e.msg
	}
	return e.msg + "\nHint: " + e.hint
}

func (e *usageError) Is(target error) bool {
	return target == ErrUsage
}

func (e *usageError) Unwrap() error { return e.cause }
