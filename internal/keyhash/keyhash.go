// Package keyhash derives the 64-bit positional identity hash: a hash of
// a source location (file, line, column) optionally folded together with
// a user-supplied key. It uses the same hash family
// (golang.org/x/crypto/sha3) that trie/stacktrie.go already relies on for
// node hashing.
package keyhash

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"golang.org/x/crypto/sha3"
)

// Location identifies a call site in source.
type Location struct {
	File   string
	Line   int
	Column int
}

// Of folds a source location and an optional user key into a 64-bit Key.
// Equal inputs always produce equal output; this is the sole identity
// basis for positional memoization.
func Of(loc Location, userKey interface{}) uint64 {
	h := sha3.New256()
	h.Write([]byte(loc.File))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(loc.Line)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(loc.Column)))
	if userKey != nil {
		h.Write([]byte{1})
		h.Write([]byte(toBytes(userKey)))
	}
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

// Combine folds a child key under a parent key, used when with_key nests
// (e.g. inside a for-loop body) so that sibling iterations at the same
// source location but different user keys do not collide.
func Combine(parent uint64, child uint64) uint64 {
	h := sha3.New256()
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], parent)
	binary.BigEndian.PutUint64(buf[8:], child)
	h.Write(buf[:])
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

func toBytes(v interface{}) []byte {
	switch t := v.(type) {
	case string:
		return []byte(t)
	case []byte:
		return t
	case int:
		return []byte(strconv.Itoa(t))
	case int64:
		return []byte(strconv.FormatInt(t, 10))
	case uint64:
		return []byte(strconv.FormatUint(t, 10))
	case fmt.Stringer:
		return []byte(t.String())
	default:
		return []byte(fmt.Sprintf("%#v", v))
	}
}
