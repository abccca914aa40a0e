// Package memtable implements the engine's in-memory write buffer: an
// ordered mapping from key to value with unique keys, sorted-key iteration
// for flushing, and an approximate byte-size counter that drives the
// flush threshold.
package memtable

import "lsmkv/internal/collections"

// MemTable buffers recent writes in key order. Keys are compared by Go's
// native string comparison, which is unsigned byte-wise lexicographic —
// exactly the ordering the engine requires for keys of arbitrary bytes.
type MemTable struct {
	entries   collections.SkipList[string, []byte]
	sizeBytes int
}

// New returns an empty MemTable.
func New() *MemTable {
	return &MemTable{
		entries: collections.NewSkipList[string, []byte](16),
	}
}

// Put inserts key or replaces its prior value. The byte-size counter is
// incremented by len(key)+len(value) on every call, including an
// overwrite — it is never decremented, which over-estimates memory
// footprint on repeated overwrites of the same keys but keeps the
// accounting O(1) and matches this engine's documented reference
// behavior.
func (m *MemTable) Put(key string, value []byte) {
	m.entries.Insert(key, value)
	m.sizeBytes += len(key) + len(value)
}

// Get returns the value for key, if present.
func (m *MemTable) Get(key string) ([]byte, bool) {
	v, ok := m.entries.Get(key)
	if !ok || v == nil {
		return nil, false
	}
	return *v, true
}

// Len returns the number of unique keys currently buffered.
func (m *MemTable) Len() int {
	return m.entries.Len()
}

// SizeBytes returns the running byte-size counter.
func (m *MemTable) SizeBytes() int {
	return m.sizeBytes
}

// IsEmpty reports whether the memtable holds no entries.
func (m *MemTable) IsEmpty() bool {
	return m.entries.Len() == 0
}

// Entry is one key/value pair yielded by SortedEntries.
type Entry struct {
	Key   string
	Value []byte
}

// SortedEntries returns every entry in ascending key order, the form a
// flush writes out to a new SSTable.
func (m *MemTable) SortedEntries() []Entry {
	out := make([]Entry, 0, m.entries.Len())
	for node := m.entries.Iterate(); node != nil; node = node.Next() {
		k, v := node.Value()
		out = append(out, Entry{Key: *k, Value: *v})
	}
	return out
}
