package misc

import (
	multierror "github.com/hashicorp/go-multierror"
)

// ErrorOrNil collapses a multierror.Error into the simplest equivalent error:
// nil if it holds nothing, the sole error if it holds one, and a flattened
// *multierror.Error otherwise.
func ErrorOrNil(multi multierror.Error) error {
	switch uint(len(multi.Errors)) {
	case 0:
		return nil

	case 1:
		return multi.Errors[0]

	default:
		clone := &multierror.Error{
			Errors:      make([]error, 0, len(multi.Errors)),
			ErrorFormat: multi.ErrorFormat,
		}
		flatten(clone, multi.Errors...)
		return clone
	}
}

// Collect appends every non-nil error to multi.
func Collect(multi *multierror.Error, errs ...error) {
	for _, err := range errs {
		if err != nil {
			multi.Errors = append(multi.Errors, err)
		}
	}
}

func flatten(out *multierror.Error, errs ...error) {
	for _, e := range errs {
		switch x := e.(type) {
		case *multierror.Error:
			flatten(out, x.Errors...)
		default:
			out.Errors = append(out.Errors, e)
		}
	}
}
