package core

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// signatureSeparator joins signature values before hashing. The unit
// separator never appears in contributed values, so adjacent fields cannot
// collide ("a"+"bc" vs "ab"+"c").
const signatureSeparator = "\x1f"

// SignatureData is an ordered key/value accumulator for fingerprint fields.
// Insertion order is part of the fingerprint; the first write for a key wins.
type SignatureData struct {
	keys   []string
	values map[string]string
}

// NewSignatureData creates an empty accumulator.
func NewSignatureData() *SignatureData {
	return &SignatureData{values: make(map[string]string)}
}

// Add contributes a field. Re-adding an existing key is a no-op.
func (s *SignatureData) Add(key, value string) {
	if _, ok := s.values[key]; ok {
		return
	}
	s.keys = append(s.keys, key)
	s.values[key] = value
}

// Len returns the number of contributed fields.
func (s *SignatureData) Len() int {
	return len(s.keys)
}

// Get returns the value for a key.
func (s *SignatureData) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Items returns the fields as a map, for stack signature info persistence.
func (s *SignatureData) Items() map[string]string {
	out := make(map[string]string, len(s.keys))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Hash computes the fingerprint digest: sha1 hex over the ordered values.
// Empty values participate, so {Type:"error", Source:""} and
// {Type:"error"} hash differently.
func (s *SignatureData) Hash() string {
	parts := make([]string, 0, len(s.keys))
	for _, k := range s.keys {
		parts = append(parts, s.values[k])
	}
	sum := sha1.Sum([]byte(strings.Join(parts, signatureSeparator)))
	return hex.EncodeToString(sum[:])
}
