package constants

// Various constants.
const (
	// NullString is the string representation of the JSON null value.
	NullString = "null"

	// NetEmpty et al are networks for net.Listen() and friends.
	NetEmpty      = ""
	NetTCP        = "tcp"
	NetTCP4       = "tcp4"
	NetTCP6       = "tcp6"
	NetUnix       = "unix"
	NetUnixgram   = "unixgram"
	NetUnixPacket = "unixpacket"

	// SubsystemHTTP et al are server subsystem names.
	SubsystemHTTP    = "http"
	SubsystemProm    = "prom"
	SubsystemGRPC    = "grpc"
	SubsystemVersion = "version"

	// HeaderContentType et al are HTTP header names.
	HeaderContentType = "Content-Type"
	HeaderContentLen  = "Content-Length"
	HeaderServer      = "Server"
	HeaderXID         = "X-Request-Id"
	HeaderXCTO        = "X-Content-Type-Options"

	// ContentTypeTextPlain is the Content-Type of every version response.
	ContentTypeTextPlain = "text/plain"

	// DefaultListenHTTP et al are default flag values.
	DefaultListenHTTP  = ":3000"
	DefaultVersionFile = "version.txt"
)

var (
	// NullBytes is the []byte representation of the JSON null value.
	NullBytes = []byte("null")
)

// IsNetUnix returns true iff its argument is an AF_UNIX network.
func IsNetUnix(str string) bool {
	switch str {
	case NetUnix:
		return true
	case NetUnixgram:
		return true
	case NetUnixPacket:
		return true
	default:
		return false
	}
}

// IsNetTCP returns true iff its argument is an AF_INET/AF_INET6 network with
// IPPROTO_TCP.
func IsNetTCP(str string) bool {
	switch str {
	case NetTCP:
		return true
	case NetTCP4:
		return true
	case NetTCP6:
		return true
	default:
		return false
	}
}
