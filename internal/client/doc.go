// Package client talks to a worldsync server: the JSON HTTP API for reads and
// mutations, and the /subscribe channel for sending packets and watching
// mutations. Watch reconnects with a retry policy when the transport fails.
package client
