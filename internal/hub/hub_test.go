package hub

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Ap3pp3rs94/signal-broker/internal/envelope"
	"github.com/Ap3pp3rs94/signal-broker/internal/identity"
	"github.com/Ap3pp3rs94/signal-broker/internal/metrics"
	"github.com/Ap3pp3rs94/signal-broker/internal/ratelimit"
	"github.com/Ap3pp3rs94/signal-broker/internal/registry"
	"github.com/Ap3pp3rs94/signal-broker/internal/router"
	"github.com/Ap3pp3rs94/signal-broker/internal/telemetry"
)

// newTestServer wires a full hub behind an httptest server, the same way
// crypto-stream's main.go dials a real websocket.Conn in its own tests'
// style rather than mocking the transport.
func newTestServer(t *testing.T) (*httptest.Server, func(name string) *websocket.Conn) {
	t.Helper()

	protected, _ := identity.LoadProtectedSet("")
	reg := registry.New(protected)
	log := telemetry.New(telemetry.LevelError)
	mc := metrics.New()
	limiter := ratelimit.New(50, time.Second, 0)
	rt := router.New(reg, log, mc)
	h := New(Config{
		MaxFrameBytes:     64 * 1024,
		KeepaliveInterval: time.Hour,
	}, reg, rt, limiter, mc, log)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	dial := func(name string) *websocket.Conn {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial failed: %v", err)
		}
		login, _ := envelope.Encode(envelope.New("login", map[string]any{"name": name}))
		if err := conn.WriteMessage(websocket.TextMessage, login); err != nil {
			t.Fatalf("login write failed: %v", err)
		}
		return conn
	}

	return srv, dial
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	env, err := envelope.Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return env
}

func TestLoginSuccess(t *testing.T) {
	_, dial := newTestServer(t)
	conn := dial("nantes")
	defer conn.Close()

	env := readEnvelope(t, conn)
	if env.Type() != "login_success" {
		t.Fatalf("expected login_success, got %v", env)
	}
	if env.String("id") != "nantes" {
		t.Fatalf("expected id=nantes, got %q", env.String("id"))
	}
}

func TestOrdinaryEvictionClosesIncumbent(t *testing.T) {
	_, dial := newTestServer(t)

	first := dial("operator-7")
	defer first.Close()
	_ = readEnvelope(t, first) // login_success

	second := dial("operator-7")
	defer second.Close()
	env := readEnvelope(t, second)
	if env.Type() != "login_success" {
		t.Fatalf("expected second connection to succeed, got %v", env)
	}

	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := first.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected a close error on the incumbent, got %v", err)
	}
	if closeErr.Code != CodeReplacedByNewConn {
		t.Fatalf("expected close code %d, got %d", CodeReplacedByNewConn, closeErr.Code)
	}
}

func TestProtectedCollisionRejectsNewcomer(t *testing.T) {
	_, dial := newTestServer(t)

	first := dial("sender-1")
	defer first.Close()
	_ = readEnvelope(t, first)

	second := dial("sender-1")
	defer second.Close()
	env := readEnvelope(t, second)
	if env.Type() != "login_error" || env.String("error") != "already_connected" {
		t.Fatalf("expected already_connected login_error, got %v", env)
	}
}

func TestRelayBetweenTwoPeers(t *testing.T) {
	_, dial := newTestServer(t)

	a := dial("nantes")
	defer a.Close()
	_ = readEnvelope(t, a)

	b := dial("obs_paris")
	defer b.Close()
	_ = readEnvelope(t, b)

	offer, _ := envelope.Encode(envelope.New("offer", map[string]any{
		"target": "obs_paris",
		"offer":  map[string]any{"type": "offer", "sdp": "opaque"},
	}))
	if err := a.WriteMessage(websocket.TextMessage, offer); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	env := readEnvelope(t, b)
	if env.Type() != "offer" || env.String("from") != "nantes" {
		t.Fatalf("expected relayed offer from nantes, got %v", env)
	}
}
