package wrshare

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func newTestEgress(t *testing.T, targetBaseURL string) *Egress {
	t.Helper()
	eg, err := NewEgress(&EgressConfig{
		BrokerURL:     "localhost:1",
		TargetBaseURL: targetBaseURL,
	})
	if err != nil {
		t.Fatalf("NewEgress: %s", err)
	}
	return eg
}

func TestEgressCallTarget(t *testing.T) {
	var gotMethod, gotPath, gotQuery, gotCustom, gotWSKey string
	var gotBody []byte
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotCustom = r.Header.Get("X-Custom")
		gotWSKey = r.Header.Get("Sec-WebSocket-Key")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Target", "yes")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("{ \"name\": \"ok\" }"))
	}))
	defer target.Close()

	eg := newTestEgress(t, target.URL)
	resp, err := eg.callTarget(&Envelope{
		Type:      TypeRequest,
		RequestID: "req-1",
		Method:    "POST",
		Path:      "/v1/items",
		Query:     url.Values{"limit": {"2"}},
		Headers: Headers{
			"X-Custom":          {"abc"},
			"Sec-Websocket-Key": {"leaked"},
			"Content-Type":      {"application/json"},
		},
		Body: []byte(`{"create":true}`),
	})
	if err != nil {
		t.Fatalf("callTarget: %s", err)
	}

	if gotMethod != "POST" || gotPath != "/v1/items" || gotQuery != "limit=2" {
		t.Errorf("target saw %s %s?%s", gotMethod, gotPath, gotQuery)
	}
	if gotCustom != "abc" {
		t.Errorf("custom header not forwarded, got %q", gotCustom)
	}
	if gotWSKey != "" {
		t.Errorf("websocket handshake header leaked to target: %q", gotWSKey)
	}
	if string(gotBody) != `{"create":true}` {
		t.Errorf("target saw body %q", gotBody)
	}

	if resp.Type != TypeResponse || resp.RequestID != "req-1" {
		t.Errorf("result envelope is %q for id %q", resp.Type, resp.RequestID)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}
	if string(resp.Body) != `{"name":"ok"}` {
		t.Errorf("structured body not compacted: %q", resp.Body)
	}
	if resp.Headers.Get("X-Target") != "yes" {
		t.Errorf("target response header lost")
	}
}

func TestEgressCallTargetFailure(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target.Close()

	eg := newTestEgress(t, target.URL)
	if _, err := eg.callTarget(&Envelope{
		Type:      TypeRequest,
		RequestID: "req-1",
		Method:    "GET",
		Path:      "/",
	}); err == nil {
		t.Fatalf("call against a dead target succeeded")
	}
}

func TestEgressTargetURL(t *testing.T) {
	tests := []struct {
		base  string
		path  string
		query url.Values
		want  string
	}{
		{"http://api.local:9000", "/v1/items", nil, "http://api.local:9000/v1/items"},
		{"http://api.local:9000/", "/v1/items", nil, "http://api.local:9000/v1/items"},
		{"http://api.local:9000/base/", "/v1/items", url.Values{"a": {"1", "2"}}, "http://api.local:9000/base/v1/items?a=1&a=2"},
	}
	for _, tc := range tests {
		eg := newTestEgress(t, tc.base)
		if got := eg.targetURL(tc.path, tc.query); got != tc.want {
			t.Errorf("targetURL(%q, %q) = %q, want %q", tc.base, tc.path, got, tc.want)
		}
	}
}

func TestNewEgressRejectsBadTarget(t *testing.T) {
	for _, base := range []string{"", "not a url at all", "/relative/only"} {
		if _, err := NewEgress(&EgressConfig{
			BrokerURL:     "localhost:1",
			TargetBaseURL: base,
		}); err == nil {
			t.Errorf("target base %q accepted", base)
		}
	}
}
