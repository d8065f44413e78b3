package kv

import (
	"bytes"
	"sync"

	"go.uber.org/zap"

	"github.com/sushant-115/dwaldb/core/btree"
	"github.com/sushant-115/dwaldb/core/pager"
)

// KeyValue is one row of a RangeResult.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// RangeResult is read_range's output (spec.md §6 "read_range").
type RangeResult struct {
	Rows        []KeyValue
	More        bool
	ReadThrough []byte
}

// Store is the single-version KV facade over a versioned Tree (spec.md
// §4.7 "KV Store facade"). Unlike the B-tree it sits on, Store never
// retains more than the most recently committed version: every Commit
// immediately advances the pager's oldest retained version to match, so
// old page versions reclaim as soon as no snapshot (there are none, by
// construction) still needs them.
type Store struct {
	pgr  *pager.Pager
	tree *btree.Tree
	log  *zap.Logger

	mu       sync.RWMutex
	closed   bool
	closedCh chan struct{}

	errMu sync.RWMutex
	err   error
}

// Open performs spec.md's `init`: opens (or creates) the pager file at
// cfg.Path and resumes or bootstraps the B-tree on top of it.
func Open(cfg Config, log *zap.Logger) (*Store, error) {
	if log == nil {
		built, err := cfg.BuildLogger()
		if err != nil {
			return nil, err
		}
		log = built
	}
	cfg = cfg.withLogger(log)

	pgr, err := pager.Open(cfg.Path, cfg.Pager)
	if err != nil {
		return nil, err
	}
	tree, err := btree.Open(pgr, log)
	if err != nil {
		pgr.Close()
		return nil, err
	}
	return &Store{pgr: pgr, tree: tree, log: log, closedCh: make(chan struct{})}, nil
}

func (s *Store) checkErr() error {
	s.errMu.RLock()
	defer s.errMu.RUnlock()
	return s.err
}

func (s *Store) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
		s.log.Error("kv: fatal error latched", zap.Error(err))
	}
}

// Set stages key=value, visible to readers only after Commit.
func (s *Store) Set(key, value []byte) error {
	if err := s.checkErr(); err != nil {
		return err
	}
	s.tree.Set(key, value)
	return nil
}

// Clear stages a [begin, end) range clear.
func (s *Store) Clear(begin, end []byte) error {
	if err := s.checkErr(); err != nil {
		return err
	}
	s.tree.ClearRange(begin, end)
	return nil
}

// Commit commits the underlying B-tree, then advances the oldest retained
// version to the version just committed: single-version retention is
// sufficient for this facade, so no snapshot ever needs an older page
// version once its commit lands (spec.md §4.7).
func (s *Store) Commit() (pager.Version, error) {
	if err := s.checkErr(); err != nil {
		return pager.InvalidVersion, err
	}
	// The pager applies a requested oldest version at its next commit, so
	// request the version this commit will produce before committing.
	s.pgr.SetOldestVersion(s.pgr.CommittedVersion() + 1)
	v, err := s.tree.Commit()
	if err != nil {
		s.setErr(err)
		return pager.InvalidVersion, err
	}
	return v, nil
}

// ReadValue returns the value stored for key, or nil if absent.
func (s *Store) ReadValue(key []byte) ([]byte, error) {
	c, err := s.cursor()
	if err != nil {
		return nil, err
	}
	ok, err := c.SeekGE(key)
	if err != nil {
		return nil, err
	}
	if !ok || !bytes.Equal(c.Key(), key) {
		return nil, nil
	}
	return c.Value(), nil
}

// ReadValuePrefix returns up to maxLen bytes of the value stored for key,
// or nil if absent (spec.md §6 "read_value_prefix").
func (s *Store) ReadValuePrefix(key []byte, maxLen int) ([]byte, error) {
	v, err := s.ReadValue(key)
	if err != nil || v == nil {
		return v, err
	}
	if len(v) > maxLen {
		return v[:maxLen], nil
	}
	return v, nil
}

// ReadRange returns up to rowLimit rows in [begin, end), or, if rowLimit
// is negative, the last |rowLimit| rows in reverse order. Accumulation
// also stops once the accumulated byte size reaches byteLimit, including
// the record that crosses it (spec.md §6 "read_range").
func (s *Store) ReadRange(begin, end []byte, rowLimit, byteLimit int) (RangeResult, error) {
	if rowLimit == 0 {
		return RangeResult{}, nil
	}
	c, err := s.cursor()
	if err != nil {
		return RangeResult{}, err
	}

	var result RangeResult
	byteCount := 0

	if rowLimit > 0 {
		ok, err := c.SeekGE(begin)
		if err != nil {
			return RangeResult{}, err
		}
		for ok && bytes.Compare(c.Key(), end) < 0 && len(result.Rows) < rowLimit {
			k, v := append([]byte(nil), c.Key()...), append([]byte(nil), c.Value()...)
			result.Rows = append(result.Rows, KeyValue{Key: k, Value: v})
			byteCount += len(k) + len(v)
			if byteLimit > 0 && byteCount >= byteLimit {
				result.More = len(result.Rows) < rowLimit
				result.ReadThrough = k
				return result, nil
			}
			ok, err = c.Next()
			if err != nil {
				return RangeResult{}, err
			}
		}
		if ok && bytes.Compare(c.Key(), end) < 0 {
			result.More = true
			result.ReadThrough = result.Rows[len(result.Rows)-1].Key
		}
		return result, nil
	}

	limit := -rowLimit
	ok, err := c.SeekLE(end)
	if err != nil {
		return RangeResult{}, err
	}
	if ok && bytes.Equal(c.Key(), end) {
		ok, err = c.Prev()
		if err != nil {
			return RangeResult{}, err
		}
	}
	for ok && bytes.Compare(c.Key(), begin) >= 0 && len(result.Rows) < limit {
		k, v := append([]byte(nil), c.Key()...), append([]byte(nil), c.Value()...)
		result.Rows = append(result.Rows, KeyValue{Key: k, Value: v})
		byteCount += len(k) + len(v)
		if byteLimit > 0 && byteCount >= byteLimit {
			result.More = len(result.Rows) < limit
			result.ReadThrough = k
			return result, nil
		}
		ok, err = c.Prev()
		if err != nil {
			return RangeResult{}, err
		}
	}
	if ok && bytes.Compare(c.Key(), begin) >= 0 {
		result.More = true
		result.ReadThrough = result.Rows[len(result.Rows)-1].Key
	}
	return result, nil
}

func (s *Store) cursor() (*btree.Cursor, error) {
	if err := s.checkErr(); err != nil {
		return nil, err
	}
	return s.tree.NewCursorAtVersion(s.pgr.CommittedVersion())
}

// StorageBytes reports the pager's byte accounting (spec.md §6
// "storage_bytes").
func (s *Store) StorageBytes() pager.StorageBytes {
	return s.pgr.StorageBytesReport()
}

// Close stops background workers and closes the underlying pager file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.tree.Close()
	err := s.pgr.Close()
	close(s.closedCh)
	return err
}

// Dispose is an alias for Close: this engine has no separate reference-
// counted disposal step beyond the pager's own snapshot refcounting,
// which Close already waits past by closing the file only after the tree
// stops its background worker.
func (s *Store) Dispose() error { return s.Close() }

// OnClosed returns a channel that closes once Close has completed.
func (s *Store) OnClosed() <-chan struct{} { return s.closedCh }

// GetError returns the store's latched fatal error, if any.
func (s *Store) GetError() error { return s.checkErr() }
