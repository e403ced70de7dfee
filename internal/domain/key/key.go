// Package key defines the opaque identifier used by every store.
//
// Domain code compares and copies keys but never inspects their contents.
// Storage backends own the encoding: Postgres keeps the string as-is,
// MongoDB maps it to an ObjectID.
package key

import (
	"strings"

	"github.com/go-faster/errors"
)

// ErrEmpty is returned by Parse for blank input.
var ErrEmpty = errors.New("empty key")

// Key identifies a stored record.
type Key struct {
	s string
}

// Parse wraps an externally supplied identifier. Only surrounding
// whitespace is removed.
func Parse(s string) (Key, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Key{}, ErrEmpty
	}
	return Key{s: s}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and seeds.
func MustParse(s string) Key {
	k, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return k
}

// String returns the storage encoding of the key.
func (k Key) String() string { return k.s }

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool { return k.s == "" }

// Compare orders keys by their encoding. Used to keep row lock order stable.
func Compare(a, b Key) int { return strings.Compare(a.s, b.s) }
