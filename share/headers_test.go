package wrshare

import (
	"bytes"
	"net/http"
	"testing"
)

func TestStripHopHeadersExactAndIdempotent(t *testing.T) {
	h := Headers{
		"Host":                     {"api.internal"},
		"content-length":           {"42"},
		"Connection":               {"Upgrade"},
		"Upgrade":                  {"websocket"},
		"Sec-WebSocket-Key":        {"abc"},
		"Sec-websocket-version":    {"13"},
		"Sec-WebSocket-Extensions": {"permessage-deflate"},
		"Sec-WebSocket-Protocol":   {"wsrelay-v1"},
		"Authorization":            {"Bearer tok"},
		"X-Custom":                 {"keep", "both"},
	}
	h.StripHopHeaders()

	for _, hop := range hopHeaders {
		if h.Get(hop) != "" {
			t.Errorf("hop header %s survived stripping", hop)
		}
	}
	if h.Get("Authorization") != "Bearer tok" {
		t.Errorf("non-hop Authorization header was stripped")
	}
	if len(h["X-Custom"]) != 2 {
		t.Errorf("duplicate header values were lost: %v", h["X-Custom"])
	}

	before := len(h)
	h.StripHopHeaders()
	if len(h) != before {
		t.Errorf("second strip removed %d more header(s)", before-len(h))
	}
}

func TestHeadersHTTPRoundTrip(t *testing.T) {
	src := http.Header{}
	src.Add("X-Multi", "one")
	src.Add("X-Multi", "two")
	src.Set("Content-Type", "text/plain")

	h := HeadersFromHTTP(src)
	dst := http.Header{}
	h.CopyToHTTP(dst)

	if got := dst.Values("X-Multi"); len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Errorf("multi-value header mangled: %v", got)
	}
	if dst.Get("Content-Type") != "text/plain" {
		t.Errorf("single-value header mangled: %q", dst.Get("Content-Type"))
	}

	// The snapshot must be independent of the source.
	src.Add("X-Multi", "three")
	if len(h["X-Multi"]) != 2 {
		t.Errorf("snapshot aliases the source header slice")
	}
}

func TestNormalizeJSONBody(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		body        string
		want        string
	}{
		{"json compacted", "application/json", "{\n  \"ok\": true\n}", `{"ok":true}`},
		{"json with charset", "application/json; charset=utf-8", `{"ok": true}`, `{"ok":true}`},
		{"suffixed media type", "application/problem+json", `{ "status": 404 }`, `{"status":404}`},
		{"invalid json untouched", "application/json", `{"ok":`, `{"ok":`},
		{"non-json untouched", "text/plain", `{ "ok": true }`, `{ "ok": true }`},
		{"empty content type untouched", "", `{ "ok": true }`, `{ "ok": true }`},
	}
	for _, tc := range cases {
		got := NormalizeJSONBody(tc.contentType, []byte(tc.body))
		if !bytes.Equal(got, []byte(tc.want)) {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
	if got := NormalizeJSONBody("application/json", nil); got != nil {
		t.Errorf("empty body: got %q, want nil", got)
	}
}
