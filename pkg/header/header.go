// Package header provides the ordered key/value envelope carried by every
// protocol message, together with its flat JSON-like wire format.
//
// A Header behaves like a string map for lookups but remembers insertion
// order, which is the order used when the header is encoded. Keys and values
// are arbitrary strings; the wire codec escapes them (see Encode and Decode).
package header

import (
	"strings"
)

// Header is an ordered string-to-string mapping.
// The zero value is an empty header ready to use.
type Header struct {
	keys   []string
	values map[string]string
}

// New builds a header from alternating key/value pairs.
// It panics if an odd number of arguments is given.
func New(pairs ...string) Header {
	if len(pairs)%2 != 0 {
		panic("header.New: odd number of arguments")
	}
	var h Header
	for i := 0; i < len(pairs); i += 2 {
		h.Set(pairs[i], pairs[i+1])
	}
	return h
}

// Set stores value under key. A new key is appended to the key order;
// an existing key keeps its position.
func (h *Header) Set(key, value string) {
	if h.values == nil {
		h.values = make(map[string]string)
	}
	if _, exists := h.values[key]; !exists {
		h.keys = append(h.keys, key)
	}
	h.values[key] = value
}

// Insert stores value under key only if key is not present yet.
// Returns true if the value was stored.
func (h *Header) Insert(key, value string) bool {
	if h.Has(key) {
		return false
	}
	h.Set(key, value)
	return true
}

// Get returns the value stored under key and whether it was present.
func (h Header) Get(key string) (string, bool) {
	v, ok := h.values[key]
	return v, ok
}

// Value returns the value stored under key, or "" when absent.
func (h Header) Value(key string) string {
	return h.values[key]
}

// Has reports whether key is present.
func (h Header) Has(key string) bool {
	_, ok := h.values[key]
	return ok
}

// Delete removes key. Deleting a missing key is a no-op.
func (h *Header) Delete(key string) {
	if _, ok := h.values[key]; !ok {
		return
	}
	delete(h.values, key)
	for i, k := range h.keys {
		if k == key {
			h.keys = append(h.keys[:i:i], h.keys[i+1:]...)
			break
		}
	}
}

// Clear removes every entry.
func (h *Header) Clear() {
	h.keys = nil
	h.values = nil
}

// Len returns the number of entries.
func (h Header) Len() int {
	return len(h.keys)
}

// Empty reports whether the header has no entries.
func (h Header) Empty() bool {
	return len(h.keys) == 0
}

// Keys returns the keys in insertion order.
func (h Header) Keys() []string {
	out := make([]string, len(h.keys))
	copy(out, h.keys)
	return out
}

// Clone returns a deep copy.
func (h Header) Clone() Header {
	return h.Copy(h.keys)
}

// Copy returns a new header holding only the listed keys, in the listed
// order. Keys that are absent are skipped.
func (h Header) Copy(keys []string) Header {
	var out Header
	for _, k := range keys {
		if v, ok := h.values[k]; ok {
			out.Set(k, v)
		}
	}
	return out
}

// Equal reports whether both headers hold the same entries, ignoring order.
func (h Header) Equal(other Header) bool {
	if h.Len() != other.Len() {
		return false
	}
	for k, v := range h.values {
		if ov, ok := other.values[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Level returns the partition depth encoded in the node address.
// The node value is stripped of brackets and spaces and split on commas;
// the depth is half the number of resulting tokens.
func (h Header) Level() int {
	node := h.Value(KeyNode)
	node = strings.NewReplacer("[", "", "]", "", " ", "").Replace(node)
	return len(strings.Split(node, ",")) / 2
}

// Node returns the node address.
func (h Header) Node() string { return h.Value(KeyNode) }

// Name returns the instance name.
func (h Header) Name() string { return h.Value(KeyName) }

// Command returns the protocol command.
func (h Header) Command() string { return h.Value(KeyCommand) }

// Query returns the query text.
func (h Header) Query() string { return h.Value(KeyQuery) }

// GetPrefixed returns the value of "prefix.key", or "" when absent.
func (h Header) GetPrefixed(prefix, key string) string {
	return h.Value(prefix + "." + key)
}

// SetPrefixed stores value under "prefix.key".
func (h *Header) SetPrefixed(prefix, key, value string) {
	h.Set(prefix+"."+key, value)
}

// RemovePrefixed deletes "prefix.key".
func (h *Header) RemovePrefixed(prefix, key string) {
	h.Delete(prefix + "." + key)
}

// KeysWithPrefix returns the keys starting with "prefix.", with the prefix
// and the dot stripped.
func (h Header) KeysWithPrefix(prefix string) []string {
	var out []string
	p := prefix + "."
	for _, k := range h.keys {
		if strings.HasPrefix(k, p) {
			out = append(out, k[len(p):])
		}
	}
	return out
}

// CopyPrefixed returns a header holding "prefix.key" for every listed key.
// Missing keys are copied with an empty value.
func (h Header) CopyPrefixed(prefix string, keys []string) Header {
	var out Header
	for _, k := range keys {
		out.SetPrefixed(prefix, k, h.GetPrefixed(prefix, k))
	}
	return out
}
