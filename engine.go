package lsmkv

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"lsmkv/internal/bloomfilter"
	"lsmkv/internal/memtable"
	"lsmkv/internal/sstable"
	"lsmkv/internal/wal"
)

// DefaultBloomFPP is the target false positive probability used by Open.
const DefaultBloomFPP = 0.01

const walFileName = "wal.log"

// Engine is the LSM tree's sole entry point: it composes the memtable, the
// write-ahead log, and the set of on-disk SSTables with their Bloom
// filters, and implements the read merge, the flush protocol, startup
// recovery, and read statistics.
//
// Engine is not safe for concurrent use — see the package doc.
type Engine struct {
	dataDir   string
	threshold int
	bloomFPP  float64

	memtable *memtable.MemTable
	wal      *wal.WAL

	// sstables is ordered newest-first: sstables[0] shadows sstables[1], and
	// so on, since a key written later always takes precedence over the same
	// key in an older SSTable.
	sstables []*sstableHandle

	// nextIndex is the index that will be assigned to the next flush. It is
	// one greater than the highest index found on disk at open time.
	nextIndex int

	filterSkips    int
	filterProceeds int
}

type sstableHandle struct {
	index  int
	path   string
	reader *sstable.Reader
	filter *bloomfilter.Filter
}

// Open opens or creates an LSM tree rooted at dataDir, using
// DefaultBloomFPP for new SSTables' Bloom filters.
func Open(dataDir string, memtableThresholdBytes int) (*Engine, error) {
	return OpenWithFPP(dataDir, memtableThresholdBytes, DefaultBloomFPP)
}

// OpenWithFPP opens or creates an LSM tree rooted at dataDir with a custom
// target Bloom filter false positive probability.
//
// On construction: dataDir is created if absent, existing SSTable/filter
// pairs are enumerated and loaded (newest shadowing oldest), the WAL is
// opened and replayed into a fresh memtable, and the memtable byte-size
// counter is recomputed from the replayed entries. No flush is performed
// during recovery, even if the replayed memtable is already above
// threshold — the next Put triggers it.
func OpenWithFPP(dataDir string, memtableThresholdBytes int, fpp float64) (*Engine, error) {
	if memtableThresholdBytes <= 0 {
		return nil, fmt.Errorf("%w: memtable threshold must be > 0", ErrInvalidConfig)
	}
	if fpp <= 0 || fpp >= 1 {
		return nil, fmt.Errorf("%w: bloom fpp must be in (0, 1)", ErrInvalidConfig)
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("lsmkv: create data dir %s: %w", dataDir, err)
	}

	sstables, nextIndex, err := loadExistingSSTables(dataDir, fpp)
	if err != nil {
		return nil, err
	}

	w, err := wal.Open(filepath.Join(dataDir, walFileName))
	if err != nil {
		return nil, err
	}

	mt := memtable.New()
	entries, err := w.Recover()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		mt.Put(string(e.Key), e.Value)
	}

	log.Debug().
		Str("dataDir", dataDir).
		Int("sstables", len(sstables)).
		Int("walEntries", len(entries)).
		Msg("engine opened")

	return &Engine{
		dataDir:   dataDir,
		threshold: memtableThresholdBytes,
		bloomFPP:  fpp,
		memtable:  mt,
		wal:       w,
		sstables:  sstables,
		nextIndex: nextIndex,
	}, nil
}

func sstablePath(dataDir string, index int) string {
	return filepath.Join(dataDir, fmt.Sprintf("sstable_%d.db", index))
}

func bloomPath(dataDir string, index int) string {
	return filepath.Join(dataDir, fmt.Sprintf("sstable_%d.bloom", index))
}

func loadExistingSSTables(dataDir string, fpp float64) ([]*sstableHandle, int, error) {
	dirEntries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, 0, fmt.Errorf("lsmkv: read data dir %s: %w", dataDir, err)
	}

	indices := make([]int, 0)
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if !strings.HasPrefix(name, "sstable_") || !strings.HasSuffix(name, ".db") {
			continue
		}
		numStr := strings.TrimSuffix(strings.TrimPrefix(name, "sstable_"), ".db")
		num, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		indices = append(indices, num)
	}

	// Indices are assigned in append order, so the highest index on disk is
	// the most recently flushed SSTable; sort descending to load newest first.
	sort.Sort(sort.Reverse(sort.IntSlice(indices)))

	nextIndex := 0
	handles := make([]*sstableHandle, 0, len(indices))
	for _, idx := range indices {
		if idx+1 > nextIndex {
			nextIndex = idx + 1
		}

		path := sstablePath(dataDir, idx)
		reader, err := sstable.Open(path)
		if err != nil {
			return nil, 0, err
		}

		filter, err := loadOrRebuildFilter(dataDir, idx, reader, fpp)
		if err != nil {
			return nil, 0, err
		}

		handles = append(handles, &sstableHandle{
			index:  idx,
			path:   path,
			reader: reader,
			filter: filter,
		})
	}

	return handles, nextIndex, nil
}

func loadOrRebuildFilter(dataDir string, idx int, reader *sstable.Reader, fpp float64) (*bloomfilter.Filter, error) {
	path := bloomPath(dataDir, idx)

	if f, err := os.Open(path); err == nil {
		defer f.Close()
		filter, err := bloomfilter.ReadFrom(f)
		if err == nil {
			return filter, nil
		}
		log.Warn().Str("path", path).Err(err).Msg("bloom filter unreadable, rebuilding from sstable")
	}

	entries, err := reader.All()
	if err != nil {
		return nil, err
	}

	filter := bloomfilter.New(len(entries), fpp)
	for _, e := range entries {
		filter.Insert(e.Key)
	}

	if out, err := os.Create(path); err == nil {
		_, _ = filter.WriteTo(out)
		_ = out.Close()
	}

	return filter, nil
}

// Put appends key/value to the WAL (syncing before return), inserts into
// the memtable, and triggers a synchronous flush if the memtable's byte
// counter has crossed the configured threshold.
//
// If the WAL append fails, the memtable is left untouched, and a Put that
// returns success is always durable on disk before the memtable reflects
// it. If the triggered flush fails, Put returns that error although the
// write is already in the WAL and the memtable.
func (e *Engine) Put(key, value []byte) error {
	if err := e.wal.AppendPut(key, value); err != nil {
		return err
	}

	e.memtable.Put(string(key), value)

	if e.memtable.SizeBytes() >= e.threshold {
		if err := e.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// Get looks up key, checking the memtable first and then each SSTable
// newest-to-oldest through its Bloom filter. It updates the filter hit/miss
// statistics; use GetImmut for a read that leaves them untouched.
func (e *Engine) Get(key []byte) ([]byte, bool) {
	return e.get(key, true)
}

// GetImmut performs the same lookup as Get without mutating filter
// statistics.
func (e *Engine) GetImmut(key []byte) ([]byte, bool) {
	return e.get(key, false)
}

func (e *Engine) get(key []byte, trackStats bool) ([]byte, bool) {
	if v, ok := e.memtable.Get(string(key)); ok {
		return v, true
	}

	for _, h := range e.sstables {
		if !h.filter.MightContain(key) {
			if trackStats {
				e.filterSkips++
			}
			continue
		}
		if trackStats {
			e.filterProceeds++
		}

		value, ok, err := h.reader.Get(key)
		if err != nil {
			// An I/O failure mid-scan is treated as a miss on this SSTable and
			// the lookup moves on to the next one, rather than failing Get
			// outright over one damaged file.
			log.Warn().Str("path", h.path).Err(err).Msg("sstable scan failed, treating as miss")
			continue
		}
		if ok {
			return value, true
		}
	}

	return nil, false
}

// Flush writes the current memtable out as a new SSTable plus its Bloom
// filter, installs the pair at the newest position, truncates the WAL,
// and replaces the memtable with a fresh empty one. Flushing an empty
// memtable is a no-op that creates no files.
func (e *Engine) Flush() error {
	if e.memtable.IsEmpty() {
		return nil
	}
	start := time.Now()

	idx := e.nextIndex
	e.nextIndex++

	sorted := e.memtable.SortedEntries()

	filter := bloomfilter.New(len(sorted), e.bloomFPP)
	entries := make([]sstable.Entry, 0, len(sorted))
	for _, kv := range sorted {
		filter.Insert([]byte(kv.Key))
		entries = append(entries, sstable.Entry{Key: []byte(kv.Key), Value: kv.Value})
	}

	dbPath := sstablePath(e.dataDir, idx)
	if err := sstable.Write(dbPath, entries); err != nil {
		return err
	}

	bloomFile, err := os.Create(bloomPath(e.dataDir, idx))
	if err != nil {
		return fmt.Errorf("lsmkv: create bloom file for sstable %d: %w", idx, err)
	}
	if _, err := filter.WriteTo(bloomFile); err != nil {
		bloomFile.Close()
		return err
	}
	if err := bloomFile.Sync(); err != nil {
		bloomFile.Close()
		return fmt.Errorf("lsmkv: sync bloom file for sstable %d: %w", idx, err)
	}
	if err := bloomFile.Close(); err != nil {
		return fmt.Errorf("lsmkv: close bloom file for sstable %d: %w", idx, err)
	}

	reader, err := sstable.Open(dbPath)
	if err != nil {
		return err
	}

	e.sstables = append([]*sstableHandle{{
		index:  idx,
		path:   dbPath,
		reader: reader,
		filter: filter,
	}}, e.sstables...)

	if err := e.wal.Clear(); err != nil {
		return err
	}

	e.memtable = memtable.New()

	log.Info().
		Int("sstable", idx).
		Int("entries", len(sorted)).
		Dur("duration", time.Since(start)).
		Msg("flush complete")

	return nil
}

// Len returns the number of entries currently buffered in the memtable.
func (e *Engine) Len() int {
	return e.memtable.Len()
}

// IsEmpty reports whether the memtable holds no entries.
func (e *Engine) IsEmpty() bool {
	return e.memtable.IsEmpty()
}

// SSTableCount returns the number of SSTables currently on disk.
func (e *Engine) SSTableCount() int {
	return len(e.sstables)
}

// PerFilterStats describes one SSTable's Bloom filter.
type PerFilterStats struct {
	NumBits      uint32
	NumHashes    uint32
	NumItems     uint32
	EstimatedFPP float64
}

// BloomFilterStats summarizes filter effectiveness across all SSTables.
type BloomFilterStats struct {
	Skips     int
	Proceeds  int
	PerFilter []PerFilterStats
}

// SkipRate returns skips/(skips+proceeds), or 0 if no filter has been
// consulted yet.
func (s BloomFilterStats) SkipRate() float64 {
	total := s.Skips + s.Proceeds
	if total == 0 {
		return 0
	}
	return float64(s.Skips) / float64(total)
}

// BloomFilterStats returns a snapshot of filter hit/miss counters and
// per-SSTable filter statistics, newest SSTable first.
func (e *Engine) BloomFilterStats() BloomFilterStats {
	per := make([]PerFilterStats, 0, len(e.sstables))
	for _, h := range e.sstables {
		s := h.filter.Stats()
		per = append(per, PerFilterStats{
			NumBits:      s.NumBits,
			NumHashes:    s.NumHashes,
			NumItems:     s.NumItems,
			EstimatedFPP: s.EstimatedFPP,
		})
	}
	return BloomFilterStats{
		Skips:     e.filterSkips,
		Proceeds:  e.filterProceeds,
		PerFilter: per,
	}
}

// ResetBloomFilterStats zeroes the skip/proceed counters.
func (e *Engine) ResetBloomFilterStats() {
	e.filterSkips = 0
	e.filterProceeds = 0
}

// Close releases the memory-mapped SSTable file handles and the WAL file
// handle. It does not flush the memtable — an unflushed memtable is
// replayed from the WAL on the next Open, so nothing written via Put is
// lost.
func (e *Engine) Close() error {
	var firstErr error
	for _, h := range e.sstables {
		if err := h.reader.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := e.wal.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
