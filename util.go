package main

import (
	"fmt"
	"io"
	"net"
	"net/http"
)

func simplifyHTTPMethod(str string) string {
	switch str {
	case http.MethodOptions:
		return http.MethodOptions
	case http.MethodGet:
		return http.MethodGet
	case http.MethodHead:
		return http.MethodHead
	case http.MethodPost:
		return http.MethodPost
	case http.MethodPut:
		return http.MethodPut
	case http.MethodPatch:
		return http.MethodPatch
	case http.MethodDelete:
		return http.MethodDelete
	default:
		return "OTHER"
	}
}

func simplifyHTTPStatusCode(statusCode int) string {
	if statusCode == 0 {
		statusCode = http.StatusOK
	}
	if statusCode < 100 || statusCode > 999 {
		return "other"
	}
	return fmt.Sprintf("%03d", statusCode)
}

func addrWithNoPort(addr net.Addr) string {
	switch x := addr.(type) {
	case nil:
		return ""
	case *net.TCPAddr:
		return x.IP.String()
	case *net.UnixAddr:
		return "unix"
	default:
		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			return addr.String()
		}
		return host
	}
}

// displayURL returns the human-friendly URL announced at startup.
func displayURL(addr net.Addr) string {
	switch x := addr.(type) {
	case *net.TCPAddr:
		return fmt.Sprintf("http://localhost:%d/", x.Port)
	case *net.UnixAddr:
		return "unix:" + x.Name
	default:
		return "http://" + addr.String() + "/"
	}
}

// announceStartup writes the "Server running at ..." line that deployment
// harnesses wait for.  It always goes to w as plain text, whatever log sink is
// configured.
func announceStartup(w io.Writer, addr net.Addr) error {
	_, err := fmt.Fprintf(w, "Server running at %s\n", displayURL(addr))
	return err
}
