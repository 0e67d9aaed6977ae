package mainutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chronos-tachyon/verserve/internal/constants"
	"github.com/chronos-tachyon/verserve/internal/misc"
)

// ListenConfig describes a socket to listen on.
//
// The string form is "<address>[;net=<network>]", e.g. ":3000",
// "127.0.0.1:3000;net=tcp4", "/run/verserve.sock" or "@verserve".  The JSON
// form is {"network":"tcp","address":":3000"}.  The empty string and "null"
// both mean "disabled".
type ListenConfig struct {
	Enabled bool
	Network string
	Address string
}

type lcJSON struct {
	Network string `json:"network,omitempty"`
	Address string `json:"address"`
}

func (lc ListenConfig) AppendTo(out *strings.Builder) {
	out.WriteString(escapeListenAddress(lc.Address))
	if lc.Network != constants.NetTCP {
		out.WriteString(";net=")
		out.WriteString(lc.Network)
	}
}

func (lc ListenConfig) String() string {
	if !lc.Enabled {
		return ""
	}

	var buf strings.Builder
	buf.Grow(64)
	lc.AppendTo(&buf)
	return buf.String()
}

func (lc ListenConfig) MarshalJSON() ([]byte, error) {
	if !lc.Enabled {
		return constants.NullBytes, nil
	}
	return json.Marshal(lc.toAlt())
}

func (lc *ListenConfig) Parse(str string) error {
	wantZero := true
	defer func() {
		if wantZero {
			*lc = ListenConfig{}
		}
	}()

	if str == "" || str == constants.NullString {
		return nil
	}

	if str[0] == '{' {
		err := lc.UnmarshalJSON([]byte(str))
		wantZero = (err != nil)
		return err
	}

	pieces := strings.Split(str, ";")

	var tmp ListenConfig
	tmp.Enabled = true
	tmp.Address = unescapeListenAddress(pieces[0])

	for _, item := range pieces[1:] {
		if item == "" {
			continue
		}

		name, value, err := splitOption(item)
		if err != nil {
			return err
		}

		switch name {
		case optionNet:
			fallthrough
		case optionNetwork:
			tmp.Network = value

		default:
			return OptionError{
				Name:     name,
				Value:    value,
				Complete: true,
				Err:      UnknownOptionError{},
			}
		}
	}

	tmp, err := tmp.postprocess()
	if err != nil {
		return err
	}

	*lc = tmp
	wantZero = false
	return nil
}

func (lc *ListenConfig) UnmarshalJSON(raw []byte) error {
	wantZero := true
	defer func() {
		if wantZero {
			*lc = ListenConfig{}
		}
	}()

	if bytes.Equal(bytes.TrimSpace(raw), constants.NullBytes) {
		return nil
	}

	var alt lcJSON
	err := misc.StrictUnmarshalJSON(raw, &alt)
	if err != nil {
		return err
	}

	tmp, err := alt.toStd().postprocess()
	if err != nil {
		return err
	}

	*lc = tmp
	wantZero = false
	return nil
}

// Listen opens the configured socket.  A disabled ListenConfig yields a
// listener that blocks in Accept until closed.
func (lc ListenConfig) Listen(ctx context.Context) (net.Listener, error) {
	if !lc.Enabled {
		return newDummyListener(), nil
	}

	var nlc net.ListenConfig
	return nlc.Listen(ctx, lc.Network, lc.Address)
}

func (lc ListenConfig) toAlt() *lcJSON {
	if !lc.Enabled {
		return nil
	}
	return &lcJSON{
		Network: lc.Network,
		Address: escapeListenAddress(lc.Address),
	}
}

func (alt lcJSON) toStd() ListenConfig {
	return ListenConfig{
		Enabled: true,
		Network: alt.Network,
		Address: unescapeListenAddress(alt.Address),
	}
}

func (lc ListenConfig) postprocess() (ListenConfig, error) {
	var zero ListenConfig

	if !lc.Enabled {
		return zero, nil
	}

	if lc.Address == "" {
		return zero, ListenAddressError{Address: lc.Address, Err: ErrExpectNonEmpty}
	}

	if lc.Network == constants.NetEmpty {
		switch {
		case lc.Address[0] == '/' || lc.Address[0] == '\x00':
			lc.Network = constants.NetUnix
		case strings.HasPrefix(lc.Address, "./") || strings.HasPrefix(lc.Address, "../"):
			lc.Network = constants.NetUnix
		default:
			lc.Network = constants.NetTCP
		}
	}

	switch {
	case constants.IsNetTCP(lc.Network):
		if _, _, err := net.SplitHostPort(lc.Address); err != nil {
			return zero, ListenAddressError{Address: lc.Address, Err: err}
		}

	case lc.Network == constants.NetUnix:
		if lc.Address[0] != '\x00' && !filepath.IsAbs(lc.Address) {
			abs, err := filepath.Abs(lc.Address)
			if err != nil {
				return zero, ListenAddressError{Address: lc.Address, Err: err}
			}
			lc.Address = abs
		}

	default:
		return zero, UnknownNetworkError{Network: lc.Network}
	}

	return lc, nil
}

func escapeListenAddress(addr string) string {
	if addr != "" && addr[0] == '\x00' {
		return "@" + addr[1:]
	}
	return addr
}

func unescapeListenAddress(addr string) string {
	if addr != "" && addr[0] == '@' {
		return "\x00" + addr[1:]
	}
	return addr
}

// type dummyListener {{{

type dummyListener struct {
	ch   chan struct{}
	once *sync.Once
}

func newDummyListener() net.Listener {
	return dummyListener{ch: make(chan struct{}), once: new(sync.Once)}
}

func (l dummyListener) Addr() net.Addr {
	return &net.TCPAddr{
		IP:   net.ParseIP("127.0.0.1"),
		Port: 0,
	}
}

func (l dummyListener) Accept() (net.Conn, error) {
	<-l.ch
	return nil, net.ErrClosed
}

func (l dummyListener) Close() error {
	l.once.Do(func() { close(l.ch) })
	return nil
}

var _ net.Listener = dummyListener{}

// }}}
