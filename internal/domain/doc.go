// Package domain defines the core domain types and interfaces.
//
// Entities are named property maps; the World is the set of all entities at a point in time.
// No implementation code lives here - just contracts shared by the store, the broadcaster,
// the channel sessions and the HTTP adapter. Interfaces are kept on the consumer side to
// prevent circular imports.
package domain
