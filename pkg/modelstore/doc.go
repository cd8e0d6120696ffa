// Package modelstore persists model records and the general settings record
// of a slot-based radio.
//
// On disk the store is a single directory:
//
//	<root>/general.bin            general settings
//	<root>/model-<i>.bin          model in slot i, 0 <= i < Layout.Slots
//	<root>/model-swap-<a>-<b>.tmp record of slot a while swapping a and b
//
// Every file is one frame (see package frame): an 8-byte header followed by
// a fixed-size payload. A file that is absent means the slot is empty.
//
// The pieces:
//   - [Store]: load, save, and delete of single records
//   - [HeaderCache]: per-slot name/listing prefix, kept in sync by every
//     mutating call
//   - [Scheduler]: deferred write-back driven by dirty bits in
//     [PendingWrites]
//   - [Manager]: copy, swap, format, and backup/restore against removable
//     media
//
// The store assumes one logical writer. It does no locking of its own and
// never starts goroutines; callers serialize access.
//
// Errors are sentinels checked with [errors.Is]. [ErrNotFound] is a normal
// query result, not a failure. [Message] maps any error to the short string
// the UI shows.
package modelstore
