// Package sstable implements the engine's immutable on-disk sorted runs.
//
// File layout, repeated to EOF, no header/footer/index:
//
//	key_len   u32 LE
//	key       key_len bytes
//	value_len u32 LE
//	value     value_len bytes
//
// Records are written in ascending key order by Write; Reader is a
// read-only linear scan backed by a memory-mapped file handle
// (golang.org/x/exp/mmap), so a lookup never has to read the whole file
// into memory. There is no sparse index or binary search: every lookup
// walks entries from the start until it finds the key or passes where it
// would be.
package sstable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"golang.org/x/exp/mmap"

	"lsmkv/internal/errs"
)

// Entry is one sorted key/value record.
type Entry struct {
	Key   []byte
	Value []byte
}

// Write creates path and writes entries, which MUST already be sorted in
// ascending key order with no duplicate keys (the memtable this engine
// flushes from guarantees both). The file is flushed and fsynced before
// Write returns, so the new SSTable is durable before the engine installs
// it into its in-memory view.
func Write(path string, entries []Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("sstable: create %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	for _, e := range entries {
		writeUint32(&buf, uint32(len(e.Key)))
		buf.Write(e.Key)
		writeUint32(&buf, uint32(len(e.Value)))
		buf.Write(e.Value)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("sstable: write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sstable: sync %s: %w", path, err)
	}
	return nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

// Reader is a read-only handle on a built SSTable file.
type Reader struct {
	path string
	data *mmap.ReaderAt
}

// Open memory-maps path for reading.
func Open(path string) (*Reader, error) {
	data, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sstable: open %s: %w", path, err)
	}
	return &Reader{path: path, data: data}, nil
}

// Close releases the memory-mapped file handle.
func (r *Reader) Close() error {
	return r.data.Close()
}

// Get scans the file from the start looking for key. Because keys are
// sorted ascending, the scan exits early as soon as a key greater than the
// target is seen — an optimization, not a correctness requirement.
func (r *Reader) Get(key []byte) ([]byte, bool, error) {
	offset := int64(0)
	end := int64(r.data.Len())

	for offset < end {
		entryKey, entryValue, next, err := r.readEntryAt(offset)
		if err != nil {
			return nil, false, err
		}

		cmp := bytes.Compare(entryKey, key)
		if cmp == 0 {
			return entryValue, true, nil
		}
		if cmp > 0 {
			break
		}
		offset = next
	}
	return nil, false, nil
}

// All scans the entire file and returns every entry in file order, used by
// the engine to rebuild a missing filter and by tests validating ascending
// key order (spec property: every produced SSTable file, parsed, yields
// strictly ascending keys).
func (r *Reader) All() ([]Entry, error) {
	offset := int64(0)
	end := int64(r.data.Len())
	entries := make([]Entry, 0)

	for offset < end {
		key, value, next, err := r.readEntryAt(offset)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Key: key, Value: value})
		offset = next
	}
	return entries, nil
}

func (r *Reader) readEntryAt(offset int64) (key, value []byte, next int64, err error) {
	keyLen, offset, err := r.readUint32At(offset)
	if err != nil {
		return nil, nil, 0, err
	}
	key, offset, err = r.readBytesAt(offset, keyLen)
	if err != nil {
		return nil, nil, 0, err
	}

	valueLen, offset, err := r.readUint32At(offset)
	if err != nil {
		return nil, nil, 0, err
	}
	value, offset, err = r.readBytesAt(offset, valueLen)
	if err != nil {
		return nil, nil, 0, err
	}

	return key, value, offset, nil
}

func (r *Reader) readUint32At(offset int64) (uint32, int64, error) {
	buf := make([]byte, 4)
	if _, err := r.data.ReadAt(buf, offset); err != nil {
		return 0, 0, fmt.Errorf("sstable: %s: corrupted length prefix at %d: %w: %w", r.path, offset, errs.ErrCorruptedFile, err)
	}
	return binary.LittleEndian.Uint32(buf), offset + 4, nil
}

func (r *Reader) readBytesAt(offset int64, length uint32) ([]byte, int64, error) {
	buf := make([]byte, length)
	if length == 0 {
		return buf, offset, nil
	}
	if _, err := r.data.ReadAt(buf, offset); err != nil {
		if err == io.EOF {
			return nil, 0, fmt.Errorf("sstable: %s: declared length %d exceeds remaining bytes at %d: %w", r.path, length, offset, errs.ErrCorruptedFile)
		}
		return nil, 0, fmt.Errorf("sstable: %s: read at %d: %w", r.path, offset, err)
	}
	return buf, offset + int64(length), nil
}
