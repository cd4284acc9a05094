// Package hub wires the registry, router, rate limiter, and metrics
// together around one upgraded connection's lifecycle (C5): accept,
// await login, serve concurrently with keepalive, close, deregister, fan
// out departure.
package hub

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Ap3pp3rs94/signal-broker/internal/envelope"
	"github.com/Ap3pp3rs94/signal-broker/internal/identity"
	"github.com/Ap3pp3rs94/signal-broker/internal/metrics"
	"github.com/Ap3pp3rs94/signal-broker/internal/peer"
	"github.com/Ap3pp3rs94/signal-broker/internal/ratelimit"
	"github.com/Ap3pp3rs94/signal-broker/internal/registry"
	"github.com/Ap3pp3rs94/signal-broker/internal/router"
	"github.com/Ap3pp3rs94/signal-broker/internal/telemetry"
)

// Close codes the broker emits, per the external interfaces contract.
const (
	CodeShutdown              = 1001
	CodeInvalidIdentity       = 4001
	CodeReplacedByNewConn     = 4002
	CodeProtectedIdentityHeld = 4003
)

// Config bundles the lifecycle tunables the hub needs at construction.
// Rate limiting itself is owned by the ratelimit.Limiter passed to New,
// since the sweep interval it needs is independent of connection
// lifecycle.
type Config struct {
	MaxFrameBytes     int
	KeepaliveInterval time.Duration
}

// Hub owns connection lifecycle for the signaling surface.
type Hub struct {
	cfg       Config
	reg       *registry.Registry
	router    *router.Router
	limiter   *ratelimit.Limiter
	metrics   *metrics.Collector
	log       *telemetry.Logger
	upgrader  websocket.Upgrader

	mu    sync.Mutex
	peers []*peer.Peer // every live peer, for shutdown drain
}

func New(cfg Config, reg *registry.Registry, rt *router.Router, limiter *ratelimit.Limiter, mc *metrics.Collector, log *telemetry.Logger) *Hub {
	h := &Hub{
		cfg:     cfg,
		reg:     reg,
		router:  rt,
		limiter: limiter,
		metrics: mc,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	rt.Drop = h.drop
	return h
}

// ServeHTTP upgrades the connection and runs its lifecycle to
// completion. It returns once the connection has closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", map[string]any{"err": err.Error()})
		return
	}
	conn.SetReadLimit(int64(h.cfg.MaxFrameBytes))
	h.serve(conn)
}

func (h *Hub) serve(conn *websocket.Conn) {
	id, ok := h.awaitLogin(conn)
	if !ok {
		return
	}

	p := peer.New(id, conn, h.log)
	result := h.reg.Register(id, p)
	if result.Outcome == registry.Rejected {
		h.sendRaw(conn, envelope.New("login_error", map[string]any{
			"error":   "already_connected",
			"message": "that identity is already connected",
		}))
		h.closeRaw(conn, CodeProtectedIdentityHeld, "identity already connected")
		return
	}

	if result.Evicted != nil {
		result.Evicted.Close(peer.CloseFrame{Code: CodeReplacedByNewConn, Reason: "Replaced by new connection"})
	}

	h.trackPeer(p)
	go p.Run()

	h.metrics.RecordConnection()
	h.log.Info("peer registered", map[string]any{"peer": id})

	// Routed through p's mailbox, not sendRaw: p.Run is now the only
	// goroutine writing to conn, and a direct conn.WriteMessage here would
	// race with it the moment another peer relays to this id.
	h.sendPeer(p, envelope.New("login_success", map[string]any{
		"id":      id,
		"clients": result.Snapshot,
	}))
	h.broadcastConnected(id)

	stop := make(chan struct{})
	go h.keepalive(p, conn, stop)

	h.readLoop(p, conn)

	close(stop)
	h.untrackPeer(p)
	h.limiter.Clear(id)
	if h.reg.Unregister(id, p) {
		h.broadcastDisconnected(id)
	}
	p.Close(peer.CloseFrame{Code: CodeShutdown, Reason: "connection closed"})
}

// awaitLogin reads frames until a login arrives, replying not_logged_in to
// any other envelope. A login with an invalid name is answered with
// invalid_name and the connection is closed with 4001. Returns ok=false if
// the connection closed before a valid login; the already_connected case
// is handled by serve after Register.
func (h *Hub) awaitLogin(conn *websocket.Conn) (string, bool) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return "", false
		}

		env, err := envelope.Decode(data)
		if err != nil {
			h.log.Warn("malformed frame before login", map[string]any{"err": err.Error()})
			continue
		}

		if env.Type() != "login" {
			h.sendRaw(conn, envelope.Error("not_logged_in", nil))
			continue
		}

		name := identity.Normalize(env.String("name"))
		if !identity.Valid(name) {
			h.sendRaw(conn, envelope.Error("invalid_name", nil))
			h.closeRaw(conn, CodeInvalidIdentity, "invalid identity")
			return "", false
		}
		return name, true
	}
}

func (h *Hub) readLoop(p *peer.Peer, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		env, err := envelope.Decode(data)
		if err != nil {
			h.log.Warn("malformed frame", map[string]any{"peer": p.ID, "err": err.Error()})
			continue
		}

		if !h.limiter.Allow(p.ID) {
			h.sendPeer(p, envelope.Error("rate_limit_exceeded", nil))
			continue
		}

		h.router.Dispatch(p, env)
	}
}

func (h *Hub) keepalive(p *peer.Peer, conn *websocket.Conn, stop <-chan struct{}) {
	t := time.NewTicker(h.cfg.KeepaliveInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				h.log.Error("keepalive ping failed", map[string]any{"peer": p.ID, "err": err.Error()})
				return
			}
		case <-stop:
			return
		}
	}
}

func (h *Hub) broadcastConnected(id string) {
	out := envelope.New("peer_connected", map[string]any{"peer": id})
	for _, other := range h.reg.Others(id) {
		h.sendPeer(other, out)
	}
}

func (h *Hub) broadcastDisconnected(id string) {
	out := envelope.New("peer_disconnected", map[string]any{"peer": id})
	for _, other := range h.reg.Others(id) {
		h.sendPeer(other, out)
	}
}

// drop is wired to router.Router.Drop: when a recipient's mailbox
// overflows, it is unregistered and closed with an error code rather than
// left to grow its backlog without bound.
func (h *Hub) drop(p *peer.Peer, reason string) {
	if h.reg.Unregister(p.ID, p) {
		h.limiter.Clear(p.ID)
		h.broadcastDisconnected(p.ID)
	}
	p.Close(peer.CloseFrame{Code: CodeShutdown, Reason: reason})
}

func (h *Hub) sendPeer(p *peer.Peer, env envelope.Envelope) {
	frame, err := envelope.Encode(env)
	if err != nil {
		return
	}
	p.Send(frame)
}

func (h *Hub) sendRaw(conn *websocket.Conn, env envelope.Envelope) {
	frame, err := envelope.Encode(env)
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_ = conn.WriteMessage(websocket.TextMessage, frame)
}

func (h *Hub) closeRaw(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(10 * time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}

func (h *Hub) trackPeer(p *peer.Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers = append(h.peers, p)
}

func (h *Hub) untrackPeer(p *peer.Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, cur := range h.peers {
		if cur == p {
			h.peers = append(h.peers[:i], h.peers[i+1:]...)
			return
		}
	}
}

// CloseAll closes every live connection with the shutdown close code,
// used by the shutdown coordinator's drain step.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	peers := make([]*peer.Peer, len(h.peers))
	copy(peers, h.peers)
	h.mu.Unlock()

	for _, p := range peers {
		p.Close(peer.CloseFrame{Code: CodeShutdown, Reason: "Server shutting down"})
	}
}
