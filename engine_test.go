package lsmkv

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

const mib = 1024 * 1024

func TestBasicPutGet(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, mib)
	assert.NoError(t, err)

	assert.NoError(t, e.Put([]byte("a"), []byte("1")))
	assert.NoError(t, e.Put([]byte("b"), []byte("2")))

	v, ok := e.Get([]byte("a"))
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	v, ok = e.Get([]byte("b"))
	assert.True(t, ok)
	assert.Equal(t, []byte("2"), v)

	_, ok = e.Get([]byte("c"))
	assert.False(t, ok)
}

func TestOverwriteAcrossFlush(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, mib)
	assert.NoError(t, err)

	assert.NoError(t, e.Put([]byte("k"), []byte("v1")))
	assert.NoError(t, e.Flush())
	assert.NoError(t, e.Put([]byte("k"), []byte("v2")))

	assert.Equal(t, 1, e.SSTableCount())
	v, ok := e.Get([]byte("k"))
	assert.True(t, ok)
	assert.Equal(t, []byte("v2"), v)

	assert.NoError(t, e.Flush())
	assert.Equal(t, 2, e.SSTableCount())
	v, ok = e.Get([]byte("k"))
	assert.True(t, ok)
	assert.Equal(t, []byte("v2"), v)
}

func TestWALCrashRecovery(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, 1024*mib)
	assert.NoError(t, err)

	assert.NoError(t, e.Put([]byte("x"), []byte("1")))
	assert.NoError(t, e.Put([]byte("y"), []byte("2")))
	assert.NoError(t, e.Close())

	e2, err := Open(dir, 1024*mib)
	assert.NoError(t, err)

	v, ok := e2.Get([]byte("x"))
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	v, ok = e2.Get([]byte("y"))
	assert.True(t, ok)
	assert.Equal(t, []byte("2"), v)

	assert.Equal(t, 0, e2.SSTableCount())
}

func TestThresholdTriggeredFlush(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, 32)
	assert.NoError(t, err)

	keys := [][2][]byte{}
	for i := 0; i < 8; i++ {
		k := []byte{byte('a' + i)}
		v := []byte(fmt.Sprintf("value%d", i))
		keys = append(keys, [2][]byte{k, v})
		assert.NoError(t, e.Put(k, v))
	}

	assert.GreaterOrEqual(t, e.SSTableCount(), 1)
	for _, kv := range keys {
		v, ok := e.Get(kv[0])
		assert.True(t, ok)
		assert.Equal(t, kv[1], v)
	}
}

func TestFilterSkip(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, 16)
	assert.NoError(t, err)

	assert.NoError(t, e.Put([]byte("alpha"), []byte("A")))
	assert.NoError(t, e.Flush())

	e.ResetBloomFilterStats()
	_, ok := e.Get([]byte("omega"))
	assert.False(t, ok)

	stats := e.BloomFilterStats()
	assert.Equal(t, 1, stats.Skips)
	assert.Equal(t, 0, stats.Proceeds)
}

func TestHighFPPNeverPanicsOrFalsePositivesValue(t *testing.T) {
	dir := t.TempDir()
	e, err := OpenWithFPP(dir, mib, 0.5)
	assert.NoError(t, err)

	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("key_%d", i))
		assert.NoError(t, e.Put(key, []byte(fmt.Sprintf("value_%d", i))))
	}
	assert.NoError(t, e.Flush())

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		key := []byte(fmt.Sprintf("unseen_%d", r.Int()))
		_, ok := e.Get(key)
		assert.False(t, ok)
	}
}

func TestFlushTruncatesWAL(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, mib)
	assert.NoError(t, err)

	assert.NoError(t, e.Put([]byte("k"), []byte("v")))
	assert.NoError(t, e.Flush())

	info, err := os.Stat(filepath.Join(dir, "wal.log"))
	assert.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())

	assert.NoError(t, e.Close())

	e2, err := Open(dir, mib)
	assert.NoError(t, err)
	assert.True(t, e2.IsEmpty())
	assert.Equal(t, 1, e2.SSTableCount())
}

func TestNewestSSTableShadowsOlder(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, mib)
	assert.NoError(t, err)

	assert.NoError(t, e.Put([]byte("k"), []byte("old")))
	assert.NoError(t, e.Flush())
	assert.NoError(t, e.Put([]byte("k"), []byte("new")))
	assert.NoError(t, e.Flush())

	assert.NoError(t, e.Close())

	e2, err := Open(dir, mib)
	assert.NoError(t, err)

	v, ok := e2.Get([]byte("k"))
	assert.True(t, ok)
	assert.Equal(t, []byte("new"), v)
}

func TestInvalidConfig(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(dir, 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = OpenWithFPP(dir, 1024, 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = OpenWithFPP(dir, 1024, 1)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEmptyEngineReturnsNotFoundForEverything(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, mib)
	assert.NoError(t, err)

	_, ok := e.Get([]byte("anything"))
	assert.False(t, ok)
}

func TestGetImmutDoesNotMutateStats(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, 16)
	assert.NoError(t, err)

	assert.NoError(t, e.Put([]byte("alpha"), []byte("A")))
	assert.NoError(t, e.Flush())

	e.ResetBloomFilterStats()
	_, _ = e.GetImmut([]byte("omega"))

	stats := e.BloomFilterStats()
	assert.Equal(t, 0, stats.Skips)
	assert.Equal(t, 0, stats.Proceeds)
}

func TestMissingBloomSiblingIsRebuiltOnReopen(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, mib)
	assert.NoError(t, err)

	assert.NoError(t, e.Put([]byte("k"), []byte("v")))
	assert.NoError(t, e.Flush())
	assert.NoError(t, e.Close())

	assert.NoError(t, os.Remove(filepath.Join(dir, "sstable_0.bloom")))

	e2, err := Open(dir, mib)
	assert.NoError(t, err)

	v, ok := e2.Get([]byte("k"))
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	_, err = os.Stat(filepath.Join(dir, "sstable_0.bloom"))
	assert.NoError(t, err, "rebuilt filter should be persisted back to disk")
}

func TestCorruptedSSTableSurfacesOnRebuild(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, mib)
	assert.NoError(t, err)

	assert.NoError(t, e.Put([]byte("k"), []byte("value")))
	assert.NoError(t, e.Flush())
	assert.NoError(t, e.Close())

	// Drop the bloom sibling and truncate the data file mid-record, forcing
	// Open to rebuild the filter from a damaged .db file.
	assert.NoError(t, os.Remove(filepath.Join(dir, "sstable_0.bloom")))
	dbPath := filepath.Join(dir, "sstable_0.db")
	info, err := os.Stat(dbPath)
	assert.NoError(t, err)
	assert.NoError(t, os.Truncate(dbPath, info.Size()-2))

	_, err = Open(dir, mib)
	assert.True(t, errors.Is(err, ErrCorruptedFile))
}
