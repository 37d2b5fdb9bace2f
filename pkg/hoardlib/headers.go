package hoardlib

import (
	"fmt"
	"net/http"
)

const (
	// Header keys
	USER_AGENT_KEY = "User-Agent"
	REFERER_KEY    = "Referer"
	RANGE_KEY      = "Range"
)

// Headers represents a list of headers.
type Headers []Header

// Get returns the index of the header with the given key.
// If the header is not found, the second return value is false.
func (h Headers) Get(key string) (index int, have bool) {
	for i, x := range h {
		if x.Key != key {
			continue
		}
		index = i
		have = true
		break
	}
	return
}

// Value returns the value of the header with the given key, or "".
func (h Headers) Value(key string) string {
	i, ok := h.Get(key)
	if !ok {
		return ""
	}
	return h[i].Value
}

// InitOrUpdate initializes the header with the given key and value.
// If the header is already present, it is not updated.
func (h *Headers) InitOrUpdate(key, value string) {
	_, ok := h.Get(key)
	if ok {
		return
	}
	*h = append(*h, Header{key, value})
}

// Update updates the header with the given key and value.
// If the header is not present, it is initialized.
func (h *Headers) Update(key, value string) {
	i, ok := h.Get(key)
	if ok {
		(*h)[i] = Header{key, value}
		return
	}
	*h = append(*h, Header{key, value})
}

// Drop removes the header with the given key, if present.
func (h *Headers) Drop(key string) {
	i, ok := h.Get(key)
	if !ok {
		return
	}
	*h = append((*h)[:i], (*h)[i+1:]...)
}

// SetRange installs a `Range: bytes=<offset>-` header for resumes.
func (h *Headers) SetRange(offset int64) {
	h.Update(RANGE_KEY, fmt.Sprintf("bytes=%d-", offset))
}

// Set sets the headers in the given http.Header.
func (h Headers) Set(header http.Header) {
	for _, x := range h {
		x.Set(header)
	}
}

// Clone returns a copy that can be mutated independently.
func (h Headers) Clone() Headers {
	out := make(Headers, len(h))
	copy(out, h)
	return out
}

// Header represents a key-value pair.
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Set sets the header in the given http.Header.
func (h *Header) Set(header http.Header) {
	header.Set(h.Key, h.Value)
}
