package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"
)

var followInterval = 250 * time.Millisecond

// copyLogLines splits r into lines.  Each complete line that holds a JSON
// object goes to pretty; anything else (blank lines, stdlib log output, stray
// console text) goes to raw unchanged.  With follow set, EOF means "wait and
// retry" until ctx is done; otherwise a trailing partial line is flushed and
// copyLogLines returns.  Only read errors and errors from the writers
// themselves are returned.
func copyLogLines(ctx context.Context, pretty io.Writer, raw io.Writer, r io.Reader, follow bool) error {
	var pending []byte
	buf := make([]byte, 4096)

	emit := func(line []byte) error {
		var err error
		if isJSONObjectLine(line) {
			_, err = pretty.Write(line)
		} else {
			_, err = raw.Write(line)
		}
		return err
	}

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		line := pending
		pending = nil
		return emit(line)
	}

	for {
		n, err := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				line := make([]byte, i+1)
				copy(line, pending[:i+1])
				pending = pending[i+1:]
				if werr := emit(line); werr != nil {
					return werr
				}
			}
		}

		switch {
		case err == nil:
			continue

		case errors.Is(err, io.EOF) && follow:
			select {
			case <-ctx.Done():
				return flush()
			case <-time.After(followInterval):
			}

		case errors.Is(err, io.EOF):
			return flush()

		default:
			return err
		}
	}
}

func isJSONObjectLine(line []byte) bool {
	line = bytes.TrimSpace(line)
	return len(line) != 0 && line[0] == '{' && json.Valid(line)
}
