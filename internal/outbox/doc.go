// Package outbox is the queue manager between captures, the durable store and
// the delivery sink.
//
// Submit tries the sink first and only writes to the store when that attempt
// fails. Flush drains the store in insertion order, stops at the first
// failure, and never runs twice at once: a second caller gets
// ErrFlushInProgress immediately. Acknowledgement follows store.ack_mode
// ("item" removes each delivered item, "batch" removes nothing until the whole
// pass succeeded); after a fully successful pass the manager clears through
// the last ID it saw, so captures appended during the flush stay queued.
package outbox
