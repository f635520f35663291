package reactor

// Codec is the opaque encrypt/decrypt boundary a connection can sit
// behind: TLS, a framing layer, or anything else transforming bytes
// before they reach an AsyncFD's read queue or after they leave its write
// queue. The reactor never implements a Codec itself — it only upgrades a
// stream socket to FDKindKTLSSocket once a Codec reports the handshake
// has finished and kernel TLS offload has taken over, letting the poller
// stop treating the fd specially.
type Codec interface {
	// Decrypt transforms bytes read off the wire before OnData sees them.
	Decrypt(ciphertext []byte) (plaintext []byte, err error)
	// Encrypt transforms bytes before Write hands them to the kernel.
	Encrypt(plaintext []byte) (ciphertext []byte, err error)
	// HandshakeDone reports whether the codec has finished its handshake
	// and the connection is eligible for the KTLS upgrade.
	HandshakeDone() bool
}

// upgradeKTLS retags fd's kind in the poller to FDKindKTLSSocket once the
// kernel has taken over the record layer via setsockopt(TCP_ULP, "tls").
// The Linux backend treats a KTLS socket exactly like a stream socket
// (edge-triggered, see poller_linux.go's eventsToEpoll), so the epoll
// registration itself needs no change. Grounded on
// SPEC_FULL.md's design note that the kind-tag swap must be atomic with
// respect to the poller's registration: poller.setKind mutates the fd
// table entry under its own lock without touching the epoll/kqueue
// registration itself, so there is no window where the backend observes
// a half-upgraded fd.
//
// The actual TCP_ULP/TLS_TX/TLS_RX setsockopt sequence is the
// application's Codec's responsibility (it alone knows the negotiated
// cipher suite and key material); this function only updates the
// reactor's own bookkeeping once that has already succeeded.
func (w *Worker) upgradeKTLS(fd int) error {
	return w.poller.setKind(fd, FDKindKTLSSocket)
}
