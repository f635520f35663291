package reactor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseConnectTargetHostname(t *testing.T) {
	target, err := ParseConnectTarget("example.com", 80)
	require.NoError(t, err)
	require.Equal(t, ConnectTarget{Network: NetworkTCP4, Host: "example.com", Port: 80}, target)
}

func TestParseConnectTargetV6Prefix(t *testing.T) {
	target, err := ParseConnectTarget("v6:example.com", 443)
	require.NoError(t, err)
	require.Equal(t, ConnectTarget{Network: NetworkTCP6, Host: "example.com", Port: 443}, target)
}

func TestParseConnectTargetUnixPrefix(t *testing.T) {
	target, err := ParseConnectTarget("unix:/var/run/reactor.sock", 0)
	require.NoError(t, err)
	require.Equal(t, ConnectTarget{Network: NetworkUnix, Path: "/var/run/reactor.sock"}, target)
}

func TestParseConnectTargetRejectsEmptyHost(t *testing.T) {
	_, err := ParseConnectTarget("", 80)
	require.ErrorIs(t, err, ErrBadConnectTarget)
}

func TestParseConnectTargetRejectsBadPort(t *testing.T) {
	_, err := ParseConnectTarget("example.com", 0)
	require.ErrorIs(t, err, ErrBadConnectTarget)
}

func TestParseConnectTargetRejectsEmptyV6Host(t *testing.T) {
	_, err := ParseConnectTarget("v6:", 80)
	require.ErrorIs(t, err, ErrBadConnectTarget)
}

func TestParseConnectTargetRejectsEmptyUnixPath(t *testing.T) {
	_, err := ParseConnectTarget("unix:", 0)
	require.ErrorIs(t, err, ErrBadConnectTarget)
}

func TestNetworkString(t *testing.T) {
	require.Equal(t, "tcp4", NetworkTCP4.String())
	require.Equal(t, "tcp6", NetworkTCP6.String())
	require.Equal(t, "unix", NetworkUnix.String())
}
