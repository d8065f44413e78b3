package btree

import "errors"

var (
	// ErrKeyNotFound reports a point lookup that found no live record. No
	// Tree or Cursor method returns it; lookups of an absent key report nil.
	ErrKeyNotFound = errors.New("btree: key not found")
	// ErrClosed reports use of a tree after Close. No Tree or Cursor method
	// returns it.
	ErrClosed = errors.New("btree: use of tree after close")
	// ErrVersionUnavailable is returned when a cursor is requested at a
	// version this tree does not retain (spec.md §4.7: single-version
	// retention — only the latest committed version is ever readable).
	ErrVersionUnavailable = errors.New("btree: requested version is not retained")
)
