package mainutil

import (
	"errors"
	"fmt"
)

// ErrExpectNonEmpty signals that an empty string was given where a value is
// required.
var ErrExpectNonEmpty = errors.New("expected non-empty string")

// type OptionError {{{

// OptionError indicates an error while parsing options.
type OptionError struct {
	Name     string
	Value    string
	Err      error
	Complete bool
}

// Error fulfills the error interface.
func (err OptionError) Error() string {
	str := err.Name
	if err.Complete {
		str = err.Name + "=" + err.Value
	}
	return fmt.Sprintf("option %q: %v", str, err.Err)
}

// Unwrap returns the underlying cause of this error.
func (err OptionError) Unwrap() error {
	return err.Err
}

var _ error = OptionError{}

// }}}

// type UnknownOptionError {{{

// UnknownOptionError indicates that an unknown option was encountered.
type UnknownOptionError struct{}

// Error fulfills the error interface.
func (UnknownOptionError) Error() string {
	return "unknown option name"
}

var _ error = UnknownOptionError{}

// }}}

// type MissingOptionValueError {{{

// MissingOptionValueError indicates that an option was found with the value
// elided.
type MissingOptionValueError struct{}

// Error fulfills the error interface.
func (MissingOptionValueError) Error() string {
	return "must specify a value"
}

var _ error = MissingOptionValueError{}

// }}}

// type UnknownNetworkError {{{

// UnknownNetworkError indicates a network name that cannot be listened on.
type UnknownNetworkError struct {
	Network string
}

// Error fulfills the error interface.
func (err UnknownNetworkError) Error() string {
	return fmt.Sprintf("unknown network %q", err.Network)
}

var _ error = UnknownNetworkError{}

// }}}

// type ListenAddressError {{{

// ListenAddressError indicates a listen address that failed validation.
type ListenAddressError struct {
	Address string
	Err     error
}

// Error fulfills the error interface.
func (err ListenAddressError) Error() string {
	return fmt.Sprintf("invalid listen address %q: %v", err.Address, err.Err)
}

// Unwrap returns the underlying cause of this error.
func (err ListenAddressError) Unwrap() error {
	return err.Err
}

var _ error = ListenAddressError{}

// }}}
