package peer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Ap3pp3rs94/signal-broker/internal/telemetry"
)

// Conn is the subset of *websocket.Conn the peer package depends on,
// narrowed so tests can supply a fake channel instead of a real socket.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

// CloseFrame carries a close code and human reason, matching the close
// codes the broker emits (1001, 4001, 4002, 4003).
type CloseFrame struct {
	Code   int
	Reason string
}

// mailboxCapacity bounds per-peer outbound backlog before the peer is
// considered a slow reader and dropped.
const mailboxCapacity = 256

const writeWait = 10 * time.Second

// Peer is one registered connection: an identity, its channel, outbound
// mailbox, and writer goroutine. A Peer is safe for concurrent use by the
// reader (owning goroutine) and any number of router goroutines calling
// Send.
type Peer struct {
	ID   string
	conn Conn
	log  *telemetry.Logger

	mbox   *mailbox
	wake   chan struct{}
	done   chan struct{}
	closed atomic.Bool

	closeOnce sync.Once
}

// New wraps conn for identity id. The caller must start Run in its own
// goroutine; frames sent before Run starts wait in the mailbox.
func New(id string, conn Conn, log *telemetry.Logger) *Peer {
	return &Peer{
		ID:   id,
		conn: conn,
		log:  log,
		mbox: newMailbox(mailboxCapacity),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Run drains the mailbox onto the underlying connection until Close is
// called. It must run in its own goroutine; it is the only goroutine that
// writes data frames to conn, which is what gives the peer ordered,
// non-interleaved writes under concurrent Send calls.
func (p *Peer) Run() {
	for {
		frame, ok := p.mbox.pop()
		if !ok {
			select {
			case <-p.wake:
				continue
			case <-p.done:
				return
			}
		}

		_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := p.conn.WriteMessage(1, frame); err != nil {
			p.log.Error("peer write failed", map[string]any{"peer": p.ID, "err": err.Error()})
			return
		}
	}
}

// Send enqueues frame for delivery. It never blocks: if the peer's
// mailbox is already full, Send reports overflow and the caller should
// drop this peer (slow-reader containment) rather than letting the queue
// grow without bound.
func (p *Peer) Send(frame []byte) (overflowed bool) {
	if p.closed.Load() {
		return false
	}
	ok, overflow := p.mbox.push(frame)
	if ok {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
	return overflow
}

// Close stops the writer goroutine and closes the underlying connection
// with the given close frame. Safe to call more than once.
func (p *Peer) Close(cf CloseFrame) {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.mbox.closeMailbox()
		close(p.done)
		deadline := time.Now().Add(writeWait)
		_ = p.conn.WriteControl(8, closeMessage(cf.Code, cf.Reason), deadline)
		_ = p.conn.Close()
	})
}

// closeMessage mirrors gorilla/websocket's FormatCloseMessage without
// importing the package here, keeping peer's dependency surface to the
// narrow Conn interface.
func closeMessage(code int, text string) []byte {
	buf := make([]byte, 2+len(text))
	buf[0] = byte(code >> 8)
	buf[1] = byte(code)
	copy(buf[2:], text)
	return buf
}
