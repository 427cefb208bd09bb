// Package wal implements C4: the append-only, crash-recoverable write-ahead
// log every mutation is durably recorded to before it touches any in-memory
// structure. Records are length-prefixed and CRC32-checksummed, so a
// torn write at the tail (the only kind of corruption a crash mid-fsync
// can produce) is detected and truncated away on recovery rather than
// treated as fatal.
package wal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/korudelta/core/internal/kerr"
)

// errCorrupt marks a record that failed its header/CRC check. It never
// escapes the package: Replay turns it into a truncation point and a
// wrapped kerr.ErrWALCorruption report.
var errCorrupt = errors.New("wal: corrupt record")

// WAL is a single append-only log file. One WAL belongs to one
// StorageEngine; concurrent access is serialised by mu, a single-writer
// mutex around one os.File.
type WAL struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// Open opens (creating if absent) the log file at path for append and
// recovery reads. It does not itself acquire the data-directory exclusive
// lock; that's Lock's job, acquired once by the StorageEngine before any
// WAL is opened.
func Open(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open wal: %v", kerr.ErrIO, err)
	}
	return &WAL{file: f, path: path}, nil
}

// Append durably writes a single entry, fsyncing before returning.
func (w *WAL) Append(e Entry) error {
	return w.AppendBatch([]Entry{e})
}

// AppendBatch writes every entry in order and takes exactly one fsync
// for the whole batch. The bulk-load / snapshot-replay path this exists
// for would otherwise pay one fsync per record for no durability
// benefit, since nothing observes the data until the batch call returns
// anyway.
func (w *WAL) AppendBatch(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, e := range entries {
		rec, err := encodeRecord(e)
		if err != nil {
			return err
		}
		if _, err := w.file.Write(rec); err != nil {
			return fmt.Errorf("%w: wal write: %v", kerr.ErrIO, err)
		}
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("%w: wal fsync: %v", kerr.ErrIO, err)
	}
	return nil
}

// Replay scans the log from the beginning and invokes fn for every valid
// record in order. If a record fails its CRC/header check (necessarily
// at the tail, since every prior fsync succeeded), the file is truncated
// at that offset and Replay returns an error wrapping
// kerr.ErrWALCorruption, with every record before that offset already
// passed to fn. A genuine read error unrelated to corruption is returned
// wrapped in kerr.ErrIO.
func (w *WAL) Replay(fn func(Entry) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: wal seek: %v", kerr.ErrIO, err)
	}

	var offset int64
	for {
		start := offset
		e, n, err := readRecord(w.file)
		if err == io.EOF {
			break
		}
		if err == errCorrupt {
			if truncErr := w.file.Truncate(start); truncErr != nil {
				return fmt.Errorf("%w: wal truncate after corruption: %v", kerr.ErrIO, truncErr)
			}
			if _, seekErr := w.file.Seek(0, io.SeekEnd); seekErr != nil {
				return fmt.Errorf("%w: wal seek after truncation: %v", kerr.ErrIO, seekErr)
			}
			return fmt.Errorf("%w: at offset %d", kerr.ErrWALCorruption, start)
		}
		if err != nil {
			return fmt.Errorf("%w: wal read: %v", kerr.ErrIO, err)
		}

		offset += n
		if err := fn(e); err != nil {
			return err
		}
	}

	_, err := w.file.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("%w: wal seek to tail: %v", kerr.ErrIO, err)
	}
	return nil
}

// Reset empties the log, used after a checkpoint has durably captured
// everything the log recorded so far.
func (w *WAL) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("%w: wal truncate: %v", kerr.ErrIO, err)
	}
	_, err := w.file.Seek(0, io.SeekStart)
	if err != nil {
		return fmt.Errorf("%w: wal seek: %v", kerr.ErrIO, err)
	}
	return nil
}

// Close releases the underlying file descriptor.
func (w *WAL) Close() error {
	return w.file.Close()
}
