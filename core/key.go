// Package core defines the identity types shared across kvgo packages.
package core

import "fmt"

// Key identifies one attention KV slot: a (layer, head, position) triple.
// It is immutable, comparable, and unique per logical slot.
type Key struct {
	Layer    uint32
	Head     uint32
	Position uint64
}

// String returns a compact representation for logs.
func (k Key) String() string {
	return fmt.Sprintf("Key(%d:%d:%d)", k.Layer, k.Head, k.Position)
}
