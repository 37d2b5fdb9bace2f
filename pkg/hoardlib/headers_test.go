package hoardlib

import (
	"net/http"
	"testing"
)

func TestHeadersInitOrUpdate(t *testing.T) {
	h := make(Headers, 0)
	h.InitOrUpdate(USER_AGENT_KEY, "first")
	h.InitOrUpdate(USER_AGENT_KEY, "second")
	if got := h.Value(USER_AGENT_KEY); got != "first" {
		t.Errorf("InitOrUpdate must not overwrite, got %q", got)
	}

	h.Update(USER_AGENT_KEY, "third")
	if got := h.Value(USER_AGENT_KEY); got != "third" {
		t.Errorf("Update must overwrite, got %q", got)
	}
}

func TestHeadersRange(t *testing.T) {
	h := make(Headers, 0)
	h.SetRange(512)
	if got := h.Value(RANGE_KEY); got != "bytes=512-" {
		t.Errorf("SetRange = %q", got)
	}
	h.SetRange(1024)
	if got := h.Value(RANGE_KEY); got != "bytes=1024-" {
		t.Errorf("SetRange must replace, got %q", got)
	}
	h.Drop(RANGE_KEY)
	if _, ok := h.Get(RANGE_KEY); ok {
		t.Error("Drop should remove the header")
	}
	h.Drop(RANGE_KEY) // dropping a missing key is a no-op
}

func TestHeadersSet(t *testing.T) {
	h := Headers{{"Referer", "https://example.test/page"}, {"X-Custom", "1"}}
	hdr := make(http.Header)
	h.Set(hdr)
	if hdr.Get("Referer") != "https://example.test/page" {
		t.Error("Referer not applied")
	}
	if hdr.Get("X-Custom") != "1" {
		t.Error("custom header not applied")
	}
}

func TestHeadersClone(t *testing.T) {
	h := Headers{{"A", "1"}}
	c := h.Clone()
	c.Update("A", "2")
	if h.Value("A") != "1" {
		t.Error("clone must not share backing storage")
	}
}
