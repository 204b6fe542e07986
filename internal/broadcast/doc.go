// Package broadcast fans mutation messages out to every connected subscriber.
//
// Each Subscriber owns an unbounded FIFO mailbox, so Publish never blocks on a slow consumer and
// never drops. Memory held by a dead peer is released when its session fails a read or write
// and unregisters. Publishers are serialized so every subscriber observes the same global order.
package broadcast
