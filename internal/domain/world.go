package domain

import (
	"maps"
	"slices"
)

// Properties is the property map of a single entity. Values are arbitrary
// JSON-serializable values; numbers decoded from the wire are json.Number.
type Properties map[string]any

// Clone returns a shallow copy of p. The result is never nil.
func (p Properties) Clone() Properties {
	if p == nil {
		return Properties{}
	}
	return maps.Clone(p)
}

// World maps entity names to their properties.
type World map[string]Properties

// Names returns the entity names in lexical order.
func (w World) Names() []string {
	return slices.Sorted(maps.Keys(w))
}

// Clone copies the world and every property map in it.
func (w World) Clone() World {
	out := make(World, len(w))
	for name, props := range w {
		out[name] = props.Clone()
	}
	return out
}
