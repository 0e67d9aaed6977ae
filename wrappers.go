package main

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/chronos-tachyon/verserve/internal/constants"
)

// type WrappedWriter {{{

// WrappedWriter is an http.ResponseWriter that remembers what was written.
type WrappedWriter interface {
	http.ResponseWriter
	Unwrap() http.ResponseWriter
	Status() int
	BytesWritten() int64
	WriteError(statusCode int)
	SawError() bool
}

func WrapWriter(w http.ResponseWriter, r *http.Request) WrappedWriter {
	isHEAD := (r.Method == http.MethodHead)

	if _, ok := w.(http.Flusher); ok {
		return &flushWrappedWriter{basicWrappedWriter{next: w, isHEAD: isHEAD}}
	}

	return &basicWrappedWriter{next: w, isHEAD: isHEAD}
}

// type basicWrappedWriter {{{

type basicWrappedWriter struct {
	next        http.ResponseWriter
	isHEAD      bool
	wroteHeader bool
	sawError    bool
	status      int
	bytes       int64
}

func (bw *basicWrappedWriter) Header() http.Header {
	return bw.next.Header()
}

func (bw *basicWrappedWriter) WriteHeader(status int) {
	if bw.wroteHeader {
		return
	}

	bw.status = status
	bw.wroteHeader = true
	bw.next.WriteHeader(status)
}

func (bw *basicWrappedWriter) Write(buf []byte) (int, error) {
	bw.WriteHeader(http.StatusOK)
	if bw.isHEAD {
		return len(buf), nil
	}
	n, err := bw.next.Write(buf)
	bw.bytes += int64(n)
	if err != nil {
		bw.sawError = true
	}
	return n, err
}

func (bw *basicWrappedWriter) Unwrap() http.ResponseWriter {
	return bw.next
}

func (bw *basicWrappedWriter) Status() int {
	return bw.status
}

func (bw *basicWrappedWriter) BytesWritten() int64 {
	return bw.bytes
}

// WriteError writes the canonical plain-text error response for statusCode,
// e.g. "Internal Server Error\n" for 500.  If the headers have already gone
// out, it can only record that the response is broken.
func (bw *basicWrappedWriter) WriteError(statusCode int) {
	if statusCode < 400 || statusCode >= 600 {
		panic(fmt.Errorf("HTTP status code %03d out of range [400..599]", statusCode))
	}

	if statusCode >= 500 {
		bw.sawError = true
	}

	if bw.wroteHeader {
		bw.sawError = true
		return
	}

	body := http.StatusText(statusCode) + "\n"

	hdrs := bw.Header()
	purgeContentHeaders(hdrs)
	hdrs.Set(constants.HeaderContentType, constants.ContentTypeTextPlain)
	hdrs.Set(constants.HeaderContentLen, strconv.Itoa(len(body)))
	hdrs.Set(constants.HeaderXCTO, "nosniff")
	bw.WriteHeader(statusCode)
	_, _ = io.WriteString(bw, body)
}

func (bw *basicWrappedWriter) SawError() bool {
	return bw.sawError
}

var _ WrappedWriter = (*basicWrappedWriter)(nil)

// }}}

// type flushWrappedWriter {{{

type flushWrappedWriter struct {
	basicWrappedWriter
}

func (fw *flushWrappedWriter) Flush() {
	fw.WriteHeader(http.StatusOK)
	fw.next.(http.Flusher).Flush()
}

var _ WrappedWriter = (*flushWrappedWriter)(nil)
var _ http.Flusher = (*flushWrappedWriter)(nil)

// }}}

// }}}

func purgeContentHeaders(hdrs http.Header) {
	for _, name := range []string{
		"Content-Encoding",
		"Content-Language",
		"Content-Length",
		"Content-Type",
		"Etag",
		"Last-Modified",
	} {
		hdrs.Del(name)
	}
}
