package compose

import (
	"github.com/loomkit/compose/internal/keyhash"
	"github.com/loomkit/compose/slot"
)

// Location pins a call site in source, the basis for positional identity.
// Generated code (or a hand-written call at
// a composable's entry) supplies this; it's a thin re-export of
// internal/keyhash's Location so callers of this package never import
// internal packages directly.
type Location = keyhash.Location

func (c *Composer) compositeKey(loc Location, userKey interface{}) slot.Key {
	base := keyhash.Of(loc, userKey)
	if parent, ok := c.topKey(); ok {
		base = keyhash.Combine(parent, base)
	}
	return slot.Key(base)
}
