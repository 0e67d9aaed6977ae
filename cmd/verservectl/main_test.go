package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronos-tachyon/verserve/lib/mainutil"
)

func TestCheckArgs(t *testing.T) {
	type testRow struct {
		cmd   string
		nargs int
		ok    bool
	}

	testData := []testRow{
		{"get", 1, true},
		{"get", 2, false},
		{"healthcheck", 1, false},
		{"healthcheck", 2, true},
		{"watch", 2, true},
		{"watch", 3, false},
		{"logs", 1, true},
		{"logs", 2, true},
		{"logs", 3, false},
	}

	for _, row := range testData {
		err := checkArgs(row.cmd, row.nargs)
		if row.ok {
			assert.NoError(t, err, "%s/%d", row.cmd, row.nargs)
		} else {
			assert.Error(t, err, "%s/%d", row.cmd, row.nargs)
		}
	}
}

func TestFetchVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("1.2.3\n"))
	}))
	defer srv.Close()

	text, err := fetchVersion(context.Background(), srv.Client(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3\n", text)
}

func TestFetchVersion_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal Server Error\n"))
	}))
	defer srv.Close()

	_, err := fetchVersion(context.Background(), srv.Client(), srv.URL+"/")
	require.Error(t, err)
	assert.Equal(t, "HTTP 500: Internal Server Error", err.Error())
}

func TestDialTarget(t *testing.T) {
	type testRow struct {
		input  string
		expect string
	}

	testData := []testRow{
		{":3001", "localhost:3001"},
		{"127.0.0.1:3001", "127.0.0.1:3001"},
		{"/run/verserve.sock", "unix:///run/verserve.sock"},
		{"@verserve", "unix-abstract:verserve"},
	}

	for _, row := range testData {
		var lc mainutil.ListenConfig
		require.NoError(t, lc.Parse(row.input), row.input)
		assert.Equal(t, row.expect, dialTarget(lc), row.input)
	}
}

// chunkReader returns its chunks one Read at a time, then io.EOF.
type chunkReader struct {
	chunks []string
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks = r.chunks[1:]
	return n, nil
}

// lineRecorder records each Write as a separate element.
type lineRecorder struct {
	lines []string
}

func (w *lineRecorder) Write(p []byte) (int, error) {
	w.lines = append(w.lines, string(p))
	return len(p), nil
}

func TestCopyLogLines(t *testing.T) {
	r := &chunkReader{chunks: []string{
		`{"level":"info",`,
		`"message":"a"}` + "\n" + `{"level":"warn","message":"b"}` + "\n",
		`{"level":"error"`,
	}}
	var w lineRecorder

	err := copyLogLines(context.Background(), &w, &w, r, false)
	require.NoError(t, err)
	assert.Equal(t, []string{
		`{"level":"info","message":"a"}` + "\n",
		`{"level":"warn","message":"b"}` + "\n",
		`{"level":"error"`,
	}, w.lines)
}

func TestCopyLogLines_Follow(t *testing.T) {
	saved := followInterval
	followInterval = time.Millisecond
	defer func() { followInterval = saved }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	err := copyLogLines(ctx, &out, &out, strings.NewReader("one\ntwo"), true)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo", out.String())
}

func TestCopyLogLines_NonJSONPassesThrough(t *testing.T) {
	input := `{"level":"info","message":"a"}` + "\n" +
		"\n" +
		"2022/08/01 12:00:00 plain stdlib line\n" +
		`{"level":"info","message":"b"}` + "\n"

	var out bytes.Buffer
	pretty := zerolog.ConsoleWriter{Out: &out, NoColor: true}

	err := copyLogLines(context.Background(), pretty, &out, strings.NewReader(input), false)
	require.NoError(t, err)

	lines := strings.Split(out.String(), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "INF a")
	assert.Equal(t, "", lines[1])
	assert.Equal(t, "2022/08/01 12:00:00 plain stdlib line", lines[2])
	assert.Contains(t, lines[3], "INF b")
	assert.Equal(t, "", lines[4])
}

type failWriter struct{}

func (failWriter) Write(p []byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestCopyLogLines_WriterError(t *testing.T) {
	err := copyLogLines(context.Background(), failWriter{}, failWriter{}, strings.NewReader("x\n"), false)
	require.Error(t, err)
	assert.Equal(t, "disk full", err.Error())
}
