package sstable

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"lsmkv/internal/errs"
)

func TestWriteAndGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sstable_0.db")

	entries := []Entry{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("c"), Value: []byte("3")},
	}
	assert.NoError(t, Write(path, entries))

	r, err := Open(path)
	assert.NoError(t, err)
	defer r.Close()

	v, ok, err := r.Get([]byte("b"))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("2"), v)

	_, ok, err = r.Get([]byte("z"))
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestAllYieldsAscendingOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sstable_0.db")

	entries := make([]Entry, 0, 50)
	for i := 0; i < 50; i++ {
		entries = append(entries, Entry{
			Key:   []byte(fmt.Sprintf("k%03d", i)),
			Value: []byte(fmt.Sprintf("v%d", i)),
		})
	}
	assert.NoError(t, Write(path, entries))

	r, err := Open(path)
	assert.NoError(t, err)
	defer r.Close()

	all, err := r.All()
	assert.NoError(t, err)
	assert.Len(t, all, 50)

	for i := 1; i < len(all); i++ {
		assert.Less(t, string(all[i-1].Key), string(all[i].Key))
	}
}

func TestEmptyValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sstable_0.db")

	entries := []Entry{
		{Key: []byte("k"), Value: []byte{}},
	}
	assert.NoError(t, Write(path, entries))

	r, err := Open(path)
	assert.NoError(t, err)
	defer r.Close()

	v, ok, err := r.Get([]byte("k"))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{}, v)
}

func TestTruncatedFileSurfacesCorruptedFileError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sstable_0.db")

	entries := []Entry{
		{Key: []byte("a"), Value: []byte("1234567890")},
	}
	assert.NoError(t, Write(path, entries))

	info, err := os.Stat(path)
	assert.NoError(t, err)
	assert.NoError(t, os.Truncate(path, info.Size()-4))

	r, err := Open(path)
	assert.NoError(t, err)
	defer r.Close()

	_, err = r.All()
	assert.True(t, errors.Is(err, errs.ErrCorruptedFile))
}
