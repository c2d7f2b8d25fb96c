package wrshare

import (
	"fmt"
	"net/url"
)

// Role identifies which side of the relay a connection speaks for. The wire
// names predate this implementation: the single egress executor registers as
// "master" and every ingress adapter registers as "client".
type Role string

// Wire values for Role.
const (
	RoleEgress  Role = "master"
	RoleIngress Role = "client"
)

// EnvelopeType discriminates the tagged union carried in every envelope.
type EnvelopeType string

// Wire values for EnvelopeType.
const (
	TypeRegister   EnvelopeType = "register"
	TypeRegistered EnvelopeType = "registered"
	TypeRequest    EnvelopeType = "request"
	TypeResponse   EnvelopeType = "response"
	TypeError      EnvelopeType = "error"
)

// Headers carries HTTP headers across the relay. Duplicate header names are
// preserved through the multi-value representation.
type Headers map[string][]string

// Envelope is the single message schema exchanged on broker connections.
// Type selects which fields are meaningful; unused fields are omitted on the
// wire. Request, response and error envelopes carry RequestID, the opaque
// correlation ID that pairs a request with its eventual response.
type Envelope struct {
	Type EnvelopeType `json:"type"`

	// Register / registered fields.
	Role     Role   `json:"role,omitempty"`
	ClientID string `json:"clientId,omitempty"`

	// Correlation ID for request/response/error envelopes.
	RequestID string `json:"requestId,omitempty"`

	// Request fields.
	Method string     `json:"method,omitempty"`
	Path   string     `json:"path,omitempty"`
	Query  url.Values `json:"query,omitempty"`

	// Response fields.
	StatusCode int `json:"statusCode,omitempty"`

	// Shared by requests and responses. Body is an opaque byte sequence;
	// it rides inside the JSON envelope as base64 and is absent when empty.
	Headers Headers `json:"headers,omitempty"`
	Body    []byte  `json:"body,omitempty"`

	// Error field for error envelopes.
	Error string `json:"error,omitempty"`
}

// MalformedEnvelopeError reports a payload that could not be decoded or
// validated as an envelope. The connection that produced it stays open; the
// broker answers with an error envelope instead of terminating.
type MalformedEnvelopeError struct {
	Reason string
	Cause  error
}

func (e *MalformedEnvelopeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed envelope: %s: %s", e.Reason, e.Cause)
	}
	return fmt.Sprintf("malformed envelope: %s", e.Reason)
}

func (e *MalformedEnvelopeError) Unwrap() error {
	return e.Cause
}

// Validate checks that the envelope carries the fields its type requires.
func (e *Envelope) Validate() error {
	switch e.Type {
	case TypeRegister, TypeRegistered:
		if e.Role != RoleEgress && e.Role != RoleIngress {
			return &MalformedEnvelopeError{Reason: fmt.Sprintf("invalid role %q", e.Role)}
		}
	case TypeRequest:
		// RequestID may be absent here; the broker assigns one before
		// forwarding.
		if e.Method == "" {
			return &MalformedEnvelopeError{Reason: "request without method"}
		}
		if e.Path == "" {
			return &MalformedEnvelopeError{Reason: "request without path"}
		}
	case TypeResponse:
		if e.RequestID == "" {
			return &MalformedEnvelopeError{Reason: "response without requestId"}
		}
	case TypeError:
		if e.Error == "" {
			return &MalformedEnvelopeError{Reason: "error envelope without message"}
		}
	default:
		return &MalformedEnvelopeError{Reason: fmt.Sprintf("unknown envelope type %q", e.Type)}
	}
	return nil
}

// DecodeEnvelope parses and validates a single wire message. Decode or
// validation failures are returned as *MalformedEnvelopeError so callers can
// distinguish a bad message from a dead connection.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	env := &Envelope{}
	if err := jsonUnmarshal(data, env); err != nil {
		return nil, &MalformedEnvelopeError{Reason: "not a JSON envelope", Cause: err}
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}

// Encode serializes the envelope for the wire.
func (e *Envelope) Encode() ([]byte, error) {
	return jsonMarshal(e)
}

// NewErrorEnvelope builds an error envelope. requestID may be empty for
// errors that are not correlated with an in-flight request (e.g. parse
// failures).
func NewErrorEnvelope(requestID, message string) *Envelope {
	return &Envelope{
		Type:      TypeError,
		RequestID: requestID,
		Error:     message,
	}
}
