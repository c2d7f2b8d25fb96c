package wrshare

import (
	"bytes"
	"testing"
)

func TestDecodeEnvelopeRoundTrip(t *testing.T) {
	env := &Envelope{
		Type:      TypeRequest,
		RequestID: "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Method:    "POST",
		Path:      "/v1/items",
		Query:     map[string][]string{"tag": {"a", "b"}},
		Headers:   Headers{"X-Custom": {"one", "two"}, "Content-Type": {"application/json"}},
		Body:      []byte(`{"name":"widget"}`),
	}
	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode returned error: %s", err)
	}
	got, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope returned error: %s", err)
	}
	if got.Type != TypeRequest || got.RequestID != env.RequestID || got.Method != "POST" || got.Path != "/v1/items" {
		t.Errorf("round trip mangled request fields: %+v", got)
	}
	if len(got.Query["tag"]) != 2 || got.Query["tag"][1] != "b" {
		t.Errorf("round trip lost repeated query values: %v", got.Query)
	}
	if len(got.Headers["X-Custom"]) != 2 {
		t.Errorf("round trip lost duplicate header values: %v", got.Headers)
	}
	if !bytes.Equal(got.Body, env.Body) {
		t.Errorf("round trip mangled body: %q", got.Body)
	}
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", `{{{`},
		{"unknown type", `{"type":"subscribe"}`},
		{"missing type", `{"requestId":"x"}`},
		{"register with bad role", `{"type":"register","role":"observer"}`},
		{"request without method", `{"type":"request","requestId":"x","path":"/a"}`},
		{"request without path", `{"type":"request","requestId":"x","method":"GET"}`},
		{"response without requestId", `{"type":"response","statusCode":200}`},
		{"error without message", `{"type":"error","requestId":"x"}`},
	}
	for _, tc := range cases {
		_, err := DecodeEnvelope([]byte(tc.data))
		if err == nil {
			t.Errorf("%s: expected decode error, got none", tc.name)
			continue
		}
		if !isMalformed(err) {
			t.Errorf("%s: expected *MalformedEnvelopeError, got %T", tc.name, err)
		}
	}
}

func TestDecodeEnvelopeAcceptsBareRequest(t *testing.T) {
	// Requests may arrive without a correlation ID; the broker assigns one.
	env, err := DecodeEnvelope([]byte(`{"type":"request","method":"GET","path":"/status"}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope returned error: %s", err)
	}
	if env.RequestID != "" {
		t.Errorf("expected empty requestId, got %q", env.RequestID)
	}
}

func TestDecodeEnvelopeRegister(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"type":"register","role":"client","clientId":"edge-1"}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope returned error: %s", err)
	}
	if env.Role != RoleIngress || env.ClientID != "edge-1" {
		t.Errorf("register fields wrong: %+v", env)
	}
	env, err = DecodeEnvelope([]byte(`{"type":"register","role":"master"}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope returned error: %s", err)
	}
	if env.Role != RoleEgress {
		t.Errorf("expected egress role, got %q", env.Role)
	}
}
