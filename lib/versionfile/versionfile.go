// Package versionfile reads the deployed version string from a text file.
//
// The file is owned by whatever deploys the application; this package only
// ever reads it, and it reads it fresh on every call so that a redeploy is
// visible on the very next request.
//
package versionfile

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"

	xunicode "golang.org/x/text/encoding/unicode"
)

// DefaultPath is the file name used when Reader.Path is empty.  Relative paths
// are resolved against the process working directory at read time.
const DefaultPath = "version.txt"

// Reader reads a version file.  The zero value reads DefaultPath.
type Reader struct {
	Path string
}

// FilePath returns the path that Read will open.
func (r Reader) FilePath() string {
	if r.Path == "" {
		return DefaultPath
	}
	return r.Path
}

// Read returns the file's contents decoded as UTF-8, with leading and
// trailing whitespace removed.  Ill-formed byte sequences become U+FFFD.  A
// file holding only whitespace yields "".
func (r Reader) Read(ctx context.Context) (string, error) {
	path := r.FilePath()

	if err := ctx.Err(); err != nil {
		return "", ReadError{Path: path, Err: err}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", ReadError{Path: path, Err: err}
	}

	text, err := xunicode.UTF8.NewDecoder().String(string(raw))
	if err != nil {
		return "", ReadError{Path: path, Err: err}
	}

	return strings.TrimFunc(text, isTrimSpace), nil
}

// isTrimSpace reports whether r is trimmed from either end of the file: the
// Unicode space separators (Zs), tab, vertical tab, form feed, CR, LF, U+2028,
// U+2029 and U+FEFF.  A leading byte order mark is therefore dropped, while
// U+0085 (NEL) is kept.
func isTrimSpace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', '\u00a0', '\ufeff', '\u2028', '\u2029':
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

// Body returns the HTTP response body for the current file contents: the
// trimmed text followed by a single "\n".
func (r Reader) Body(ctx context.Context) ([]byte, error) {
	str, err := r.Read(ctx)
	if err != nil {
		return nil, err
	}
	body := make([]byte, 0, len(str)+1)
	body = append(body, str...)
	body = append(body, '\n')
	return body, nil
}

// type ReadError {{{

// ReadError represents failure to read the version file.
type ReadError struct {
	Path string
	Err  error
}

// Error fulfills the error interface.
func (err ReadError) Error() string {
	return fmt.Sprintf("failed to read version file %q: %v", err.Path, err.Err)
}

// Unwrap returns the underlying cause of this error.
func (err ReadError) Unwrap() error {
	return err.Err
}

var _ error = ReadError{}

// }}}
