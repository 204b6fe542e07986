// Package world holds the authoritative entity store.
//
// A single RWMutex guards the entity map; every operation is a short critical section and
// never blocks on I/O. Reads return copies so callers can encode them without holding the lock.
// Only Set notifies; Update, Merge and Clear are pure state mutations and the caller decides
// what, if anything, to broadcast.
package world
