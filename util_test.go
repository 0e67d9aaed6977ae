package main

import (
	"bytes"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayURL(t *testing.T) {
	assert.Equal(t, "http://localhost:3000/", displayURL(&net.TCPAddr{IP: net.IPv6zero, Port: 3000}))
	assert.Equal(t, "http://localhost:3000/", displayURL(&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 3000}))
	assert.Equal(t, "unix:/run/verserve.sock", displayURL(&net.UnixAddr{Net: "unix", Name: "/run/verserve.sock"}))
}

func TestSimplifyHTTPMethod(t *testing.T) {
	assert.Equal(t, "GET", simplifyHTTPMethod(http.MethodGet))
	assert.Equal(t, "DELETE", simplifyHTTPMethod(http.MethodDelete))
	assert.Equal(t, "OTHER", simplifyHTTPMethod("PROPFIND"))
	assert.Equal(t, "OTHER", simplifyHTTPMethod(http.MethodConnect))
}

func TestSimplifyHTTPStatusCode(t *testing.T) {
	assert.Equal(t, "200", simplifyHTTPStatusCode(0))
	assert.Equal(t, "200", simplifyHTTPStatusCode(http.StatusOK))
	assert.Equal(t, "500", simplifyHTTPStatusCode(http.StatusInternalServerError))
	assert.Equal(t, "other", simplifyHTTPStatusCode(42))
}

func TestAddrWithNoPort(t *testing.T) {
	assert.Equal(t, "", addrWithNoPort(nil))
	assert.Equal(t, "10.0.0.1", addrWithNoPort(&net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 5555}))
	assert.Equal(t, "unix", addrWithNoPort(&net.UnixAddr{Net: "unix", Name: "/x"}))
}

func TestAnnounceStartup(t *testing.T) {
	var buf bytes.Buffer
	err := announceStartup(&buf, &net.TCPAddr{IP: net.IPv6zero, Port: 3000})
	require.NoError(t, err)
	assert.Equal(t, "Server running at http://localhost:3000/\n", buf.String())
}
