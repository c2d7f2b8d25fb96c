package wrshare

import (
	"mime"
	"net/http"
	"strings"
)

// hopHeaders are transport- or hop-specific headers that are meaningless or
// wrong when a request is replayed on a different connection. They are
// stripped from every outbound call the egress executor makes; the HTTP
// client recomputes the ones that matter.
var hopHeaders = []string{
	"Host",
	"Content-Length",
	"Connection",
	"Upgrade",
	"Sec-Websocket-Key",
	"Sec-Websocket-Version",
	"Sec-Websocket-Extensions",
	"Sec-Websocket-Protocol",
	"Sec-Websocket-Accept",
}

// HeadersFromHTTP snapshots an http.Header into the wire representation.
func HeadersFromHTTP(h http.Header) Headers {
	if len(h) == 0 {
		return nil
	}
	out := make(Headers, len(h))
	for k, vs := range h {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// CopyToHTTP writes the relayed headers onto an http.Header, preserving
// duplicates.
func (h Headers) CopyToHTTP(dst http.Header) {
	for k, vs := range h {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

// StripHopHeaders removes hop-specific headers, matching names
// case-insensitively. Stripping is idempotent: applying it to already
// stripped headers is a no-op.
func (h Headers) StripHopHeaders() {
	for k := range h {
		ck := http.CanonicalHeaderKey(k)
		for _, hop := range hopHeaders {
			if ck == hop {
				delete(h, k)
				break
			}
		}
	}
}

// Get returns the first value for the named header, matching
// case-insensitively, or "" if absent.
func (h Headers) Get(name string) string {
	cn := http.CanonicalHeaderKey(name)
	for k, vs := range h {
		if http.CanonicalHeaderKey(k) == cn && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}

// isJSONContentType reports whether a content-type names a JSON payload
// (application/json or any +json suffixed media type).
func isJSONContentType(ct string) bool {
	if ct == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// NormalizeJSONBody best-effort treats body as structured data when the
// content type says it is JSON: a parseable body is returned in its parsed
// (compact) form. Anything else — non-JSON content types, empty bodies,
// payloads that fail to parse — comes back unmodified. It never fails.
func NormalizeJSONBody(contentType string, body []byte) []byte {
	if len(body) == 0 || !isJSONContentType(contentType) {
		return body
	}
	if !jsonValid(body) {
		return body
	}
	var v any
	if err := jsonUnmarshal(body, &v); err != nil {
		return body
	}
	out, err := jsonMarshal(v)
	if err != nil {
		return body
	}
	return out
}
