package reactor

import "strings"

// Network identifies the address family a connect target resolves to.
type Network int

const (
	NetworkTCP4 Network = iota
	NetworkTCP6
	NetworkUnix
)

func (n Network) String() string {
	switch n {
	case NetworkTCP4:
		return "tcp4"
	case NetworkTCP6:
		return "tcp6"
	case NetworkUnix:
		return "unix"
	default:
		return "unknown"
	}
}

// ConnectTarget is a parsed outbound connection target: either a host and
// port (IPv4 or IPv6) or a Unix domain socket path.
type ConnectTarget struct {
	Network Network
	Host    string // hostname or IP, empty for Unix targets
	Port    int    // 0 for Unix targets
	Path    string // Unix socket path, empty for TCP targets
}

// ParseConnectTarget parses an outbound connect target string, grounded
// on original_source/src/80s/80s_common.c's s80_connect prefix dispatch:
// a "v6:" prefix selects AF_INET6, a "unix:" prefix selects AF_UNIX with
// the remainder treated as a filesystem path (port is ignored), and
// anything else is a plain IPv4 hostname. Returns ErrBadConnectTarget for
// an empty address or a zero/negative port on a TCP target.
func ParseConnectTarget(addr string, port int) (ConnectTarget, error) {
	switch {
	case strings.HasPrefix(addr, "v6:"):
		host := addr[len("v6:"):]
		if host == "" || port <= 0 {
			return ConnectTarget{}, ErrBadConnectTarget
		}
		return ConnectTarget{Network: NetworkTCP6, Host: host, Port: port}, nil

	case strings.HasPrefix(addr, "unix:"):
		path := addr[len("unix:"):]
		if path == "" {
			return ConnectTarget{}, ErrBadConnectTarget
		}
		return ConnectTarget{Network: NetworkUnix, Path: path}, nil

	default:
		if addr == "" || port <= 0 {
			return ConnectTarget{}, ErrBadConnectTarget
		}
		return ConnectTarget{Network: NetworkTCP4, Host: addr, Port: port}, nil
	}
}
