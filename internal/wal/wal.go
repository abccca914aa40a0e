// Package wal implements the engine's write-ahead log: a single
// append-only file of durable mutations, replayed on startup and
// truncated after every successful flush.
//
// File format, repeated to EOF:
//
//	op_type   u8                (1 = Put; other values reserved)
//	key_len   u32 LE
//	key       key_len bytes
//	value_len u32 LE
//	value     value_len bytes
package wal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
)

const opPut byte = 1

// Entry is one recovered mutation, delivered by Recover in append order.
type Entry struct {
	Key   []byte
	Value []byte
}

// WAL is the durable append-only log backing the live memtable. The engine
// keeps one WAL for its lifetime, clearing it on every flush and reusing it
// for each fresh memtable.
type WAL struct {
	path string
	file *os.File
}

// Open creates the WAL file if absent, or opens it for appending if it
// already exists — data from a prior run is preserved until Clear is
// called.
func Open(path string) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}
	return &WAL{path: path, file: file}, nil
}

// AppendPut appends one Put record and forces it durably to stable storage
// before returning. A Put acknowledgement by the engine requires this call
// to have succeeded.
func (w *WAL) AppendPut(key, value []byte) error {
	buf := make([]byte, 0, 1+4+len(key)+4+len(value))
	buf = append(buf, opPut)
	buf = appendUint32(buf, uint32(len(key)))
	buf = append(buf, key...)
	buf = appendUint32(buf, uint32(len(value)))
	buf = append(buf, value...)

	if _, err := w.file.Write(buf); err != nil {
		return fmt.Errorf("wal: append: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: sync: %w", err)
	}
	return nil
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

// Recover reads every well-formed record from the beginning of the file in
// append order. A truncated trailing record (a short read on a length
// prefix or on its declared payload) is treated as the end of the log, not
// an error — it is the signature of a crash between fsync and a fully
// persisted record.
func (w *WAL) Recover() ([]Entry, error) {
	f, err := os.Open(w.path)
	if err != nil {
		return nil, fmt.Errorf("wal: open for recovery: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	entries := make([]Entry, 0)

	for {
		opByte, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("wal: read op: %w", err)
		}
		if opByte != opPut {
			return nil, fmt.Errorf("wal: invalid op type %d", opByte)
		}

		key, ok, err := readLengthPrefixed(r)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		value, ok, err := readLengthPrefixed(r)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		entries = append(entries, Entry{Key: key, Value: value})
	}

	log.Debug().Str("path", w.path).Int("entries", len(entries)).Msg("wal recovered")
	return entries, nil
}

// readLengthPrefixed reads a u32-LE length followed by that many bytes. A
// short read on either the length or the payload is reported via ok=false,
// not an error — it is a truncated tail.
func readLengthPrefixed(r *bufio.Reader) (data []byte, ok bool, err error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("wal: read length: %w", err)
	}

	length := binary.LittleEndian.Uint32(lenBuf)
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("wal: read payload: %w", err)
	}
	return buf, true, nil
}

// Clear truncates the WAL to zero bytes and fsyncs, the commit point for a
// successful flush.
func (w *WAL) Clear() error {
	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("wal: truncate: %w", err)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("wal: seek: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: sync after clear: %w", err)
	}
	return nil
}

// IsEmpty reports whether the WAL currently holds zero bytes.
func (w *WAL) IsEmpty() (bool, error) {
	n, err := w.LenBytes()
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// LenBytes returns the current size of the WAL file in bytes.
func (w *WAL) LenBytes() (int64, error) {
	info, err := w.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("wal: stat: %w", err)
	}
	return info.Size(), nil
}

// Close releases the underlying file handle.
func (w *WAL) Close() error {
	return w.file.Close()
}
