// Package router implements the broker's envelope classification and
// dispatch (C4): broadcast fan-out, targeted relay, and the hybrid
// relay-plus-observer event.
package router

import (
	"time"

	"github.com/Ap3pp3rs94/signal-broker/internal/envelope"
	"github.com/Ap3pp3rs94/signal-broker/internal/errcodes"
	"github.com/Ap3pp3rs94/signal-broker/internal/identity"
	"github.com/Ap3pp3rs94/signal-broker/internal/peer"
	"github.com/Ap3pp3rs94/signal-broker/internal/registry"
	"github.com/Ap3pp3rs94/signal-broker/internal/telemetry"
)

// Metrics is the narrow interface the router needs from the metrics
// package: a single per-type counter bump, so router tests don't need a
// full metrics.Collector.
type Metrics interface {
	RecordEnvelope(envType string)
}

// Router dispatches post-login envelopes for one sender against the
// shared registry.
type Router struct {
	reg     *registry.Registry
	log     *telemetry.Logger
	metrics Metrics
	// Drop is invoked when a recipient's mailbox overflows; the hub wires
	// this to its own close+unregister+broadcast-departure path so a slow
	// reader cannot stall the sender (design note: slow-reader
	// containment).
	Drop func(p *peer.Peer, reason string)
}

func New(reg *registry.Registry, log *telemetry.Logger, metrics Metrics) *Router {
	return &Router{reg: reg, log: log, metrics: metrics}
}

// Dispatch handles one post-login envelope from sender. The hub is
// responsible for routing the connection's first envelope through the
// login path instead of here.
func (r *Router) Dispatch(sender *peer.Peer, env envelope.Envelope) {
	envType := env.Type()
	if r.metrics != nil {
		r.metrics.RecordEnvelope(envType)
	}

	target := env.String("target")
	cl := classify(envType, target != "")

	switch cl {
	case classLogin:
		r.log.Warn("login envelope after registration", map[string]any{"peer": sender.ID})

	case classKeepalive:
		r.send(sender, envelope.New("pong", map[string]any{
			"timestamp": time.Now().UnixMilli(),
		}))

	case classBroadcast:
		r.broadcast(sender, env, envType)

	case classHybridRelay:
		r.hybridRelay(sender, env, target)

	case classRelay:
		r.relay(sender, env, envType, target)

	case classPermissiveRelay:
		r.permissiveRelay(sender, env, target)

	case classUnhandled:
		r.log.Debug("unhandled envelope type", map[string]any{"peer": sender.ID, "type": envType})
	}
}

func (r *Router) broadcast(sender *peer.Peer, env envelope.Envelope, envType string) {
	out := envelope.New(envType, env)
	out["from"] = sender.ID
	if envType == "stream_stopped" {
		if _, ok := out["reason"]; !ok {
			out["reason"] = "manual"
		}
	}
	for _, p := range r.reg.Others(sender.ID) {
		r.send(p, out)
	}
}

func (r *Router) hybridRelay(sender *peer.Peer, env envelope.Envelope, target string) {
	if !identity.Valid(target) {
		if target == "" {
			r.send(sender, envelope.Error(string(errcodes.MissingTarget), nil))
		} else {
			r.send(sender, envelope.Error(string(errcodes.InvalidTarget), nil))
		}
		return
	}

	out := envelope.New(env.Type(), env)
	out["from"] = sender.ID

	if tp, ok := r.reg.Lookup(target); ok {
		r.send(tp, out)
	} else {
		r.send(sender, envelope.Error(string(errcodes.TargetNotFound), map[string]any{"target": target}))
	}

	for _, p := range r.reg.Others(sender.ID, target) {
		r.send(p, out)
	}
}

func (r *Router) relay(sender *peer.Peer, env envelope.Envelope, envType, target string) {
	if errTag := validateRelay(envType, target, env); errTag != "" {
		r.send(sender, envelope.Error(errTag, nil))
		return
	}

	out := envelope.New(envType, env)
	out["from"] = sender.ID

	tp, ok := r.reg.Lookup(target)
	if !ok {
		r.send(sender, envelope.Error(string(errcodes.TargetNotFound), map[string]any{"target": target}))
		return
	}
	r.send(tp, out)
}

func (r *Router) permissiveRelay(sender *peer.Peer, env envelope.Envelope, target string) {
	if !identity.Valid(target) {
		r.send(sender, envelope.Error(string(errcodes.InvalidTarget), nil))
		return
	}

	out := envelope.New(env.Type(), env)
	out["from"] = sender.ID

	tp, ok := r.reg.Lookup(target)
	if !ok {
		r.send(sender, envelope.Error(string(errcodes.TargetNotFound), map[string]any{"target": target}))
		return
	}
	r.send(tp, out)
}

// validateRelay returns the specific structural-error tag for a relay
// envelope, or "" if it is well formed.
func validateRelay(envType, target string, env envelope.Envelope) string {
	if target == "" {
		return string(errcodes.MissingTarget)
	}
	if !identity.Valid(target) {
		return "invalid_target"
	}

	switch envType {
	case "offer":
		return validateSDP(env, "offer")
	case "answer":
		return validateSDP(env, "answer")
	case "candidate", "ice-candidate":
		if _, ok := env["candidate"]; !ok {
			return "missing_candidate"
		}
	case "request_offer":
		// no extra fields required beyond target.
	}
	return ""
}

func validateSDP(env envelope.Envelope, field string) string {
	v, ok := env[field]
	if !ok {
		return "missing_sdp"
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return "invalid_sdp"
	}
	if _, ok := obj["type"].(string); !ok {
		return "invalid_sdp"
	}
	if _, ok := obj["sdp"].(string); !ok {
		return "invalid_sdp"
	}
	return ""
}

// send encodes env and hands it to p's mailbox, invoking Drop on
// overflow rather than letting the sender block on a stuck peer.
func (r *Router) send(p *peer.Peer, env envelope.Envelope) {
	frame, err := envelope.Encode(env)
	if err != nil {
		r.log.Error("encode outbound envelope failed", map[string]any{"peer": p.ID, "err": err.Error()})
		return
	}
	if overflowed := p.Send(frame); overflowed {
		r.log.Warn("peer mailbox overflow, dropping connection", map[string]any{"peer": p.ID})
		if r.Drop != nil {
			r.Drop(p, "mailbox overflow")
		}
	}
}
