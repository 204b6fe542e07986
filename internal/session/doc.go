// Package session runs one WebSocket channel session.
//
// A session owns a seeded subscriber mailbox and drives it with two cooperating loops: the reader
// applies inbound packets to the world and republishes them verbatim, the writer drains the mailbox
// to the peer. A third loop sends keep-alive pings so a silent peer fails its read deadline. When
// any loop ends, the others are cancelled and teardown runs exactly once.
package session
