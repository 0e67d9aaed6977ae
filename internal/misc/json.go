package misc

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// ErrTrailingJSON is returned when a JSON document is followed by more data.
var ErrTrailingJSON = errors.New("unexpected data after JSON value")

// StrictUnmarshalJSON decodes exactly one JSON value into v, rejecting unknown
// object fields and any trailing non-whitespace input.
func StrictUnmarshalJSON(raw []byte, v interface{}) error {
	d := json.NewDecoder(bytes.NewReader(raw))
	d.DisallowUnknownFields()
	d.UseNumber()
	if err := d.Decode(v); err != nil {
		return err
	}
	if _, err := d.Token(); err != io.EOF {
		return ErrTrailingJSON
	}
	return nil
}
