package misc

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	multierror "github.com/hashicorp/go-multierror"
)

// ExpandString expands ${ENV_VAR} references.
func ExpandString(in string) (string, error) {
	var errs multierror.Error

	expanded := os.Expand(in, func(name string) string {
		value, found := os.LookupEnv(name)
		if !found {
			errs.Errors = append(errs.Errors, EnvVarLookupError{Var: name})
		}
		return value
	})

	return expanded, ErrorOrNil(errs)
}

// ExpandPath expands ${ENV_VAR} references and ~ or ~user prefixes, then
// makes the result absolute relative to the current directory.
func ExpandPath(in string) (string, error) {
	var errs multierror.Error

	expanded, err := ExpandString(in)
	Collect(&errs, err)

	if expanded != "" && expanded[0] == '~' {
		var userName string
		var rest string
		if i := strings.IndexByte(expanded, '/'); i >= 0 {
			userName, rest = expanded[1:i], expanded[i+1:]
		} else {
			userName = expanded[1:]
		}

		homeDir, err := homeDirFor(userName)
		Collect(&errs, err)
		expanded = filepath.Join(homeDir, rest)
	}

	if expanded != "" {
		abs, err := filepath.Abs(expanded)
		if err == nil {
			expanded = abs
		}
		Collect(&errs, err)
	}

	return expanded, ErrorOrNil(errs)
}

func homeDirFor(userName string) (string, error) {
	if userName == "" {
		if value, found := os.LookupEnv("HOME"); found {
			return value, nil
		}
	}

	var u *user.User
	var err error
	if userName == "" {
		u, err = user.Current()
	} else {
		u, err = user.Lookup(userName)
	}
	if err != nil {
		return filepath.Join("/home", userName), UserLookupError{Name: userName, Err: err}
	}
	return u.HomeDir, nil
}

// type EnvVarLookupError {{{

// EnvVarLookupError represents a reference to an unset environment variable.
type EnvVarLookupError struct {
	Var string
}

// Error fulfills the error interface.
func (err EnvVarLookupError) Error() string {
	return fmt.Sprintf("environment variable ${%s} is not set", err.Var)
}

var _ error = EnvVarLookupError{}

// }}}

// type UserLookupError {{{

// UserLookupError represents failure to look up an OS user for ~ expansion.
type UserLookupError struct {
	Name string
	Err  error
}

// Error fulfills the error interface.
func (err UserLookupError) Error() string {
	if err.Name == "" {
		return fmt.Sprintf("failed to look up current user: %v", err.Err)
	}
	return fmt.Sprintf("failed to look up user %q: %v", err.Name, err.Err)
}

// Unwrap returns the underlying cause of this error.
func (err UserLookupError) Unwrap() error {
	return err.Err
}

var _ error = UserLookupError{}

// }}}
