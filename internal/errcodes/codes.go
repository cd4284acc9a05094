// Package errcodes gives every protocol-level and HTTP-level error the
// broker can emit a stable code, an HTTP status for the status surface,
// and a human description, mirroring the teacher's pkg/errors registry
// but scoped to this broker's own error vocabulary.
package errcodes

type Code string

const (
	InvalidName       Code = "invalid_name"
	AlreadyConnected  Code = "already_connected"
	NotLoggedIn       Code = "not_logged_in"
	RateLimitExceeded Code = "rate_limit_exceeded"
	TargetNotFound    Code = "target_not_found"
	MissingTarget     Code = "missing_target"
	InvalidTarget     Code = "invalid_target"
	MissingSDP        Code = "missing_sdp"
	InvalidSDP        Code = "invalid_sdp"
	MissingCandidate  Code = "missing_candidate"
	Forbidden         Code = "Forbidden"
	NotFound          Code = "Not found"
	Internal          Code = "internal_error"
)

// Meta describes how a Code should be surfaced outside the protocol
// envelope itself (status endpoints, logs).
type Meta struct {
	HTTPStatus  int
	Retryable   bool
	Description string
}

var registry = map[Code]Meta{
	InvalidName:       {HTTPStatus: 400, Retryable: false, Description: "claimed identity failed validation"},
	AlreadyConnected:  {HTTPStatus: 409, Retryable: false, Description: "protected identity already held"},
	NotLoggedIn:       {HTTPStatus: 400, Retryable: false, Description: "envelope received before login"},
	RateLimitExceeded: {HTTPStatus: 429, Retryable: true, Description: "per-peer send rate ceiling exceeded"},
	TargetNotFound:    {HTTPStatus: 404, Retryable: false, Description: "relay target not registered (a registered target's channel state is not checked)"},
	MissingTarget:     {HTTPStatus: 400, Retryable: false, Description: "relay envelope missing target field"},
	InvalidTarget:     {HTTPStatus: 400, Retryable: false, Description: "relay target is not a valid identity"},
	MissingSDP:        {HTTPStatus: 400, Retryable: false, Description: "offer/answer missing required payload field"},
	InvalidSDP:        {HTTPStatus: 400, Retryable: false, Description: "offer/answer payload malformed"},
	MissingCandidate:  {HTTPStatus: 400, Retryable: false, Description: "candidate envelope missing candidate field"},
	Forbidden:         {HTTPStatus: 403, Retryable: false, Description: "status endpoint restricted to loopback callers"},
	NotFound:          {HTTPStatus: 404, Retryable: false, Description: "unknown status path"},
	Internal:          {HTTPStatus: 500, Retryable: true, Description: "unexpected broker error"},
}

// MetaFor returns metadata for a code, falling back to Internal/500 for
// unknown codes so callers always get a sane HTTP status.
func MetaFor(code Code) Meta {
	if m, ok := registry[code]; ok {
		return m
	}
	return registry[Internal]
}
