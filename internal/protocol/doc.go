// Package protocol implements the channel wire format.
//
// Inbound packets are JSON objects with exactly one top-level key, the entity name, mapping to
// an object of property updates: {"cat": {"x": 1}}. Shape is checked against a JSON Schema
// before decoding. Outbound messages use the same shape and are either seed snapshots of a
// whole entity or verbatim echoes of inbound packets.
package protocol
