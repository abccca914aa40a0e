// Package lsmkv implements an embedded, single-process key/value storage
// engine organized as a Log-Structured Merge (LSM) tree.
//
// Writes are durably logged to a write-ahead log, buffered in an in-memory
// memtable, and periodically flushed to immutable on-disk SSTables once the
// memtable crosses a configured size threshold. Reads check the memtable
// first, then consult each SSTable newest-to-oldest, using a per-SSTable
// Bloom filter to skip files that provably do not contain the key.
//
//	┌───────────────────────────────────────────────────────────┐
//	│                          Engine                            │
//	├───────────────────────────────────────────────────────────┤
//	│  Write path: Put → WAL (fsync) → MemTable → [Flush]        │
//	│  Read path:  Get → MemTable → SSTable_0 → SSTable_1 → ...  │
//	│  Flush:      MemTable → sstable_i.db + sstable_i.bloom,     │
//	│              WAL truncated                                 │
//	└───────────────────────────────────────────────────────────┘
//
// Engine is the sole entry point; it is not safe for concurrent use from
// multiple goroutines without external synchronization. There is no
// background compaction running against it, so there is nothing for a lock
// to arbitrate.
package lsmkv
