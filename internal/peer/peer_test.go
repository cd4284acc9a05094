package peer

import (
	"sync"
	"testing"
	"time"

	"github.com/Ap3pp3rs94/signal-broker/internal/telemetry"
)

type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	closed  bool
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, append([]byte(nil), data...))
	return nil
}
func (f *fakeConn) ReadMessage() (int, []byte, error)        { select {} }
func (f *fakeConn) Close() error                              { f.mu.Lock(); f.closed = true; f.mu.Unlock(); return nil }
func (f *fakeConn) SetReadLimit(int64)                        {}
func (f *fakeConn) SetReadDeadline(time.Time) error            { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error           { return nil }
func (f *fakeConn) SetPongHandler(func(string) error)          {}
func (f *fakeConn) WriteControl(int, []byte, time.Time) error  { return nil }

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

func TestSendDeliversInOrder(t *testing.T) {
	conn := &fakeConn{}
	log := telemetry.New(telemetry.LevelError)
	p := New("nantes", conn, log)
	go p.Run()
	defer p.Close(CloseFrame{Code: 1001, Reason: "test done"})

	p.Send([]byte("one"))
	p.Send([]byte("two"))
	p.Send([]byte("three"))

	deadline := time.Now().Add(time.Second)
	for conn.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.written) != 3 {
		t.Fatalf("expected 3 frames delivered, got %d", len(conn.written))
	}
	want := []string{"one", "two", "three"}
	for i, w := range want {
		if string(conn.written[i]) != w {
			t.Fatalf("frame %d: got %q, want %q", i, conn.written[i], w)
		}
	}
}

func TestSendOverflowsWhenMailboxFull(t *testing.T) {
	conn := &fakeConn{}
	log := telemetry.New(telemetry.LevelError)
	p := New("paris", conn, log)
	// no Run goroutine: mailbox never drains, forcing overflow.

	overflowed := false
	for i := 0; i < mailboxCapacity+1; i++ {
		if ov := p.Send([]byte("frame")); ov {
			overflowed = true
		}
	}
	if !overflowed {
		t.Fatal("expected mailbox to report overflow once capacity is exceeded")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	conn := &fakeConn{}
	log := telemetry.New(telemetry.LevelError)
	p := New("nantes", conn, log)
	go p.Run()

	p.Close(CloseFrame{Code: 1001, Reason: "first"})
	p.Close(CloseFrame{Code: 1001, Reason: "second"})

	if !conn.closed {
		t.Fatal("expected underlying connection to be closed")
	}
}
