// Package errs holds sentinel errors shared between the engine and its
// internal packages, so a detection point in sstable or bloomfilter can
// signal the same corrupted-file condition the root package exposes to
// callers.
package errs

import "errors"

// ErrCorruptedFile is returned when an on-disk SSTable or Bloom filter
// file's length prefixes don't match the bytes actually present.
var ErrCorruptedFile = errors.New("lsmkv: corrupted file")
