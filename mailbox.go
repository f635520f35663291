package reactor

import "sync"

// MailKind tags the payload carried by a mailMessage: accept-handoff,
// read, write, close, and user-message, the five message types the
// mailbox envelope carries per the external interface this runtime
// exposes. Stop/quit/reload are deliberately not mailbox kinds — they are
// direct wakeFD signals plus atomic state flags owned by reload.go and
// shutdown.go, not messages routed through a target worker's queue.
type MailKind int

const (
	// MailAccept hands a freshly accepted connection to its target
	// worker (the S80_MB_ACCEPT case of the original tagged union).
	MailAccept MailKind = iota
	// MailRead carries a completed read event to an fd's owning worker,
	// for backends (IOCP) where a completion can be dequeued by a
	// worker other than the one the fd is registered with.
	MailRead
	// MailWrite carries a completed write event to an fd's owning
	// worker, for the same cross-thread-completion reason as MailRead.
	MailWrite
	// MailClose requests the owning worker close and deregister a fd.
	MailClose
	// MailUser carries an application-defined payload between workers,
	// untouched by the reactor itself.
	MailUser
)

// mailMessage is one cross-worker message, carrying the full envelope:
// which worker and fd sent it, which fd it targets, its type, and its
// payload. Read/write/close messages carry the byte count or buffer an
// IOCP completion reported; accept-handoff carries the new fd and its
// kind; user messages carry an opaque payload.
type mailMessage struct {
	kind           MailKind
	senderWorkerID int
	senderFD       int
	receiverFD     int
	fk             FDKind
	n              int
	payload        any
}

// mailChunkSize is the number of messages per chunk node, sized the same
// as the teacher's task-queue chunks: enough to amortize allocation under
// bursty accept() storms without wasting much memory at idle.
const mailChunkSize = 128

// mailChunk is a fixed-size node in the mailbox's chunked linked-list
// backing store. The readPos/pos cursors give O(1) push without shifting
// elements.
type mailChunk struct {
	messages [mailChunkSize]mailMessage
	next     *mailChunk
	readPos  int
	pos      int
}

var mailChunkPool = sync.Pool{
	New: func() any { return &mailChunk{} },
}

func newMailChunk() *mailChunk {
	c := mailChunkPool.Get().(*mailChunk)
	c.pos = 0
	c.readPos = 0
	c.next = nil
	return c
}

func returnMailChunk(c *mailChunk) {
	c.pos = 0
	c.readPos = 0
	c.next = nil
	mailChunkPool.Put(c)
}

// mailQueue is a chunked linked-list queue of mailMessage, the same
// layout as the teacher's ChunkedIngress generalized from func() tasks to
// typed mail messages. The caller (Mailbox) holds the external lock.
type mailQueue struct {
	head   *mailChunk
	tail   *mailChunk
	length int
}

func (q *mailQueue) push(m mailMessage) {
	if q.tail == nil {
		q.tail = newMailChunk()
		q.head = q.tail
	}
	if q.tail.pos == len(q.tail.messages) {
		next := newMailChunk()
		q.tail.next = next
		q.tail = next
	}
	q.tail.messages[q.tail.pos] = m
	q.tail.pos++
	q.length++
}

// drainAll removes every queued message and returns them in FIFO order,
// returning all chunks to the pool as it goes. Matches the original's
// "swap the message slice out under lock, process it outside the lock"
// pattern used by resolve_mail.
func (q *mailQueue) drainAll() []mailMessage {
	if q.length == 0 {
		return nil
	}
	out := make([]mailMessage, 0, q.length)
	for c := q.head; c != nil; {
		for i := c.readPos; i < c.pos; i++ {
			out = append(out, c.messages[i])
		}
		next := c.next
		returnMailChunk(c)
		c = next
	}
	q.head = nil
	q.tail = nil
	q.length = 0
	return out
}

// Mailbox is the cross-worker control channel: any worker (or the
// dispatcher, reload controller, or shutdown controller) can post a
// message to another worker's mailbox; the target worker drains it from
// inside its own poller loop after being woken via wakeFD.
//
// Grounded on original_source/src/80s/80s_common.c's s80_mail/resolve_mail:
// a lock-guarded queue plus a "signaled" flag that dedupes wakeups so a
// worker buried under a flood of mail only gets woken once, not once per
// message.
type Mailbox struct {
	mu       sync.Mutex
	queue    mailQueue
	signaled bool
	wake     waker
}

// waker is the subset of *wakeFD the mailbox needs, narrowed to an
// interface so tests can substitute a counting fake instead of a real
// OS-level eventfd/self-pipe/IOCP handle.
type waker interface {
	signal() error
}

// NewMailbox creates a Mailbox backed by the given wakeFD. The wakeFD is
// typically one leg of the owning worker's poller wakeup registration. wake
// may be nil, a nil interface value, or a typed nil *wakeFD — all are
// treated as "no wakeup primitive configured".
func NewMailbox(wake *wakeFD) *Mailbox {
	m := &Mailbox{}
	if wake != nil {
		m.wake = wake
	}
	return m
}

// Post appends a message to the mailbox and, if the mailbox was not
// already signaled, wakes the owning worker's poller exactly once.
func (m *Mailbox) Post(msg mailMessage) {
	m.mu.Lock()
	m.queue.push(msg)
	wake := !m.signaled
	if wake {
		m.signaled = true
	}
	m.mu.Unlock()
	if wake && m.wake != nil {
		_ = m.wake.signal()
	}
}

// PostAccept hands a freshly accepted connection fd (of kind fk) from
// senderWorkerID to this mailbox's owning worker.
func (m *Mailbox) PostAccept(senderWorkerID, fd int, fk FDKind) {
	m.Post(mailMessage{kind: MailAccept, senderWorkerID: senderWorkerID, receiverFD: fd, fk: fk})
}

// PostClose requests the owning worker close and deregister fd, on
// behalf of senderWorkerID.
func (m *Mailbox) PostClose(senderWorkerID, fd int) {
	m.Post(mailMessage{kind: MailClose, senderWorkerID: senderWorkerID, receiverFD: fd})
}

// PostRead routes a completed read of n bytes on fd to fd's owning
// worker, used on backends where the completion was dequeued by a
// different worker thread than the one fd is registered with.
func (m *Mailbox) PostRead(senderWorkerID, fd, n int) {
	m.Post(mailMessage{kind: MailRead, senderWorkerID: senderWorkerID, receiverFD: fd, n: n})
}

// PostWrite routes a completed write of n bytes on fd to fd's owning
// worker, for the same cross-thread-completion reason as PostRead.
func (m *Mailbox) PostWrite(senderWorkerID, fd, n int) {
	m.Post(mailMessage{kind: MailWrite, senderWorkerID: senderWorkerID, receiverFD: fd, n: n})
}

// PostUser delivers an application-defined payload to the owning worker.
func (m *Mailbox) PostUser(senderWorkerID int, payload any) {
	m.Post(mailMessage{kind: MailUser, senderWorkerID: senderWorkerID, payload: payload})
}

// Drain removes and returns every queued message, clearing the signaled
// flag so the next Post wakes the worker again. Called from the owning
// worker's goroutine only, after its wakeFD fires.
func (m *Mailbox) Drain() []mailMessage {
	m.mu.Lock()
	msgs := m.queue.drainAll()
	m.signaled = false
	m.mu.Unlock()
	return msgs
}

// Len reports the number of messages currently queued, for metrics.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.length
}
