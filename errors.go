package lsmkv

import (
	"errors"

	"lsmkv/internal/errs"
)

// Sentinel errors for conditions callers may want to check for explicitly.
// Plain I/O failures from the filesystem are wrapped and returned as-is
// rather than mapped onto a sentinel, letting os/mmap errors bubble
// straight up.
var (
	// ErrInvalidConfig is returned by Open/OpenWithFPP when
	// memtableThresholdBytes is zero, or fpp does not lie in (0, 1).
	ErrInvalidConfig = errors.New("lsmkv: invalid configuration")

	// ErrCorruptedFile is returned when a length prefix in an SSTable or
	// filter file declares more bytes than remain in the file. It is the
	// same sentinel internal/sstable and internal/bloomfilter wrap their
	// own detection points with, so errors.Is(err, ErrCorruptedFile) works
	// regardless of which layer found the mismatch.
	ErrCorruptedFile = errs.ErrCorruptedFile
)
