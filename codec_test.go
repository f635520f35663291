package reactor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// stubCodec is a minimal Codec used only to exercise the interface shape;
// it does no real encryption.
type stubCodec struct {
	done bool
}

func (c *stubCodec) Decrypt(ciphertext []byte) ([]byte, error) { return ciphertext, nil }
func (c *stubCodec) Encrypt(plaintext []byte) ([]byte, error)  { return plaintext, nil }
func (c *stubCodec) HandshakeDone() bool                       { return c.done }

func TestCodecInterfaceSatisfiedByStub(t *testing.T) {
	var c Codec = &stubCodec{done: true}
	require.True(t, c.HandshakeDone())

	plain, err := c.Decrypt([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), plain)
}

func TestUpgradeKTLSRetagsRegisteredFD(t *testing.T) {
	w, err := newWorker(0, resolveServerOptions(nil), nil, nil)
	require.NoError(t, err)
	defer func() { _ = w.poller.Close(); _ = w.wake.close() }()

	fd, err := newWakeFD()
	require.NoError(t, err)
	defer fd.close()

	require.NoError(t, w.poller.register(fd.readFD(), FDKindStreamSocket, EventRead, func(IOEvents) {}))
	require.NoError(t, w.upgradeKTLS(fd.readFD()))
}
