package versionfile

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestReader_Read(t *testing.T) {
	type testRow struct {
		name    string
		content string
		want    string
		body    string
	}

	testData := []testRow{
		{name: "plain", content: "1.2.3", want: "1.2.3", body: "1.2.3\n"},
		{name: "trailing-newline", content: "1.2.3\n", want: "1.2.3", body: "1.2.3\n"},
		{name: "crlf", content: "1.2.3\r\n", want: "1.2.3", body: "1.2.3\n"},
		{name: "surrounding-space", content: " \t1.2.3  \n\n", want: "1.2.3", body: "1.2.3\n"},
		{name: "git-short-sha", content: "a1b2c3d\n", want: "a1b2c3d", body: "a1b2c3d\n"},
		{name: "whitespace-only", content: "   \n", want: "", body: "\n"},
		{name: "empty", content: "", want: "", body: "\n"},
		{name: "inner-whitespace-kept", content: "v1 build 7\n", want: "v1 build 7", body: "v1 build 7\n"},
		{name: "byte-order-mark", content: "\ufeff1.2.3\n", want: "1.2.3", body: "1.2.3\n"},
		{name: "next-line-kept", content: "1.2.3\u0085", want: "1.2.3\u0085", body: "1.2.3\u0085\n"},
		{name: "unicode-spaces", content: "\u2028\u00a0 1.2.3\u3000\u2029", want: "1.2.3", body: "1.2.3\n"},
		{name: "invalid-byte", content: "1.2\xff.3\n", want: "1.2\ufffd.3", body: "1.2\ufffd.3\n"},
		{name: "truncated-sequence", content: "1.2\xe2\x82.3", want: "1.2\ufffd.3", body: "1.2\ufffd.3\n"},
	}

	for _, row := range testData {
		row := row
		t.Run(row.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "version.txt")
			writeFile(t, path, row.content)

			r := Reader{Path: path}

			got, err := r.Read(context.Background())
			require.NoError(t, err)
			assert.Equal(t, row.want, got)

			body, err := r.Body(context.Background())
			require.NoError(t, err)
			assert.Equal(t, row.body, string(body))
		})
	}
}

func TestReader_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "version.txt")
	r := Reader{Path: path}

	body, err := r.Body(context.Background())
	assert.Nil(t, body)
	require.Error(t, err)

	var readErr ReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, path, readErr.Path)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.Contains(t, err.Error(), path)
}

func TestReader_Directory(t *testing.T) {
	r := Reader{Path: t.TempDir()}

	_, err := r.Read(context.Background())
	var readErr ReadError
	require.ErrorAs(t, err, &readErr)
}

func TestReader_CancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "version.txt")
	writeFile(t, path, "1.2.3")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Reader{Path: path}.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReader_NoCaching(t *testing.T) {
	path := filepath.Join(t.TempDir(), "version.txt")
	r := Reader{Path: path}
	ctx := context.Background()

	writeFile(t, path, "first\n")
	got, err := r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	got, err = r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	writeFile(t, path, "second\n")
	got, err = r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", got)

	require.NoError(t, os.Remove(path))
	_, err = r.Read(ctx)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	writeFile(t, path, "third")
	got, err = r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "third", got)
}

func TestReader_DefaultPath(t *testing.T) {
	assert.Equal(t, DefaultPath, Reader{}.FilePath())
	assert.Equal(t, "/srv/app/version.txt", Reader{Path: "/srv/app/version.txt"}.FilePath())
}
