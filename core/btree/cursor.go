package btree

import (
	"github.com/sushant-115/dwaldb/core/deltatree"
	"github.com/sushant-115/dwaldb/core/pager"
)

// levelFrame is one level of a Cursor's root-to-leaf descent path.
type levelFrame struct {
	page *Page
	cur  *deltatree.Cursor
}

// Cursor walks the committed B-tree in key order, paging internal nodes in
// as it descends (spec.md §4.7 "cursor"). It keeps the root page id it was
// opened with, but each page it reads is resolved at whatever version is
// the latest committed one at the time of that read; it does not pin a
// snapshot, so a commit that lands while the cursor is open can change
// what later reads through it return.
type Cursor struct {
	reader        pageReader
	root          PageID
	stack         []levelFrame
	valid         bool
	descendTarget []byte
}

// NewCursorAtVersion opens a cursor over v, the most recently committed
// version. Any other version returns ErrVersionUnavailable.
func (t *Tree) NewCursorAtVersion(v pager.Version) (*Cursor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v != t.pgr.CommittedVersion() {
		return nil, ErrVersionUnavailable
	}
	return &Cursor{reader: livePageReader{p: t.pgr}, root: t.root}, nil
}

// Valid reports whether the cursor currently references a live record.
func (c *Cursor) Valid() bool { return c.valid }

// Key returns the current record's key. Valid() must be true.
func (c *Cursor) Key() []byte { return c.leaf().Item().Key }

// Value returns the current record's value. Valid() must be true.
func (c *Cursor) Value() []byte { return c.leaf().Item().Value }

func (c *Cursor) leaf() *deltatree.Cursor {
	return c.stack[len(c.stack)-1].cur
}

// descendToChild finds the child record covering target in an internal
// page's delta tree: the rightmost entry with key <= target, falling back
// to the first entry if target precedes everything (the first entry's key
// is the first key of its child page, so targets below it route there).
func descendToChild(dc *deltatree.Cursor, target []byte) bool {
	if dc.SeekLE(deltatree.Item{Key: target}, nil) {
		return true
	}
	return dc.First()
}

// walkTo descends from the root applying atLeaf at the leaf level and
// descendToChild at every internal level, leaving the stack positioned at
// whatever atLeaf found.
func (c *Cursor) walkTo(atLeaf func(*deltatree.Cursor) bool) (bool, error) {
	c.stack = c.stack[:0]
	pageID := c.root
	for pageID != nil {
		page, err := readLogicalPage(c.reader, pageID)
		if err != nil {
			return false, err
		}
		dc := deltatree.NewCursor(page.tree)
		var ok bool
		if page.IsLeaf() {
			ok = atLeaf(dc)
			c.stack = append(c.stack, levelFrame{page: page, cur: dc})
			c.valid = ok
			return ok, nil
		}
		ok = descendToChild(dc, c.descendTarget)
		c.stack = append(c.stack, levelFrame{page: page, cur: dc})
		if !ok {
			c.valid = false
			return false, nil
		}
		pageID = ChildPageID(fromItem(dc.Item()))
	}
	c.valid = false
	return false, nil
}

// descendTarget is the key the current walkTo call is routing internal
// descents toward; set by each public seek method before calling walkTo.
func (c *Cursor) withTarget(target []byte) *Cursor {
	c.descendTarget = target
	return c
}

// SeekGE positions the cursor at the first live record with key >= target.
func (c *Cursor) SeekGE(target []byte) (bool, error) {
	c.withTarget(target)
	return c.walkTo(func(dc *deltatree.Cursor) bool { return dc.SeekGE(deltatree.Item{Key: target}, nil) })
}

// SeekLE positions the cursor at the last live record with key <= target.
func (c *Cursor) SeekLE(target []byte) (bool, error) {
	c.withTarget(target)
	return c.walkTo(func(dc *deltatree.Cursor) bool { return dc.SeekLE(deltatree.Item{Key: target}, nil) })
}

// First positions the cursor at the tree's first live record.
func (c *Cursor) First() (bool, error) {
	c.withTarget(nil)
	return c.walkTo(func(dc *deltatree.Cursor) bool { return dc.First() })
}

// Next advances to the next live record, ascending and re-descending
// across page boundaries as needed.
func (c *Cursor) Next() (bool, error) {
	for level := len(c.stack) - 1; level >= 0; level-- {
		if c.stack[level].cur.Next() {
			c.stack = c.stack[:level+1]
			return c.redescend(level, func(dc *deltatree.Cursor) bool { return dc.First() })
		}
	}
	c.valid = false
	return false, nil
}

// Prev retreats to the previous live record.
func (c *Cursor) Prev() (bool, error) {
	for level := len(c.stack) - 1; level >= 0; level-- {
		if c.stack[level].cur.Prev() {
			c.stack = c.stack[:level+1]
			return c.redescend(level, func(dc *deltatree.Cursor) bool { return dc.Last() })
		}
	}
	c.valid = false
	return false, nil
}

// redescend re-enters child pages below level (whose own cursor just moved)
// applying atLeaf to position every new level, internal and leaf alike:
// Next passes First() and Prev passes Last(), so they land on the new
// leaf's edge record rather than re-seeking by key.
func (c *Cursor) redescend(level int, atLeaf func(*deltatree.Cursor) bool) (bool, error) {
	if c.stack[level].page.IsLeaf() {
		c.valid = true
		return true, nil
	}
	pageID := ChildPageID(fromItem(c.stack[level].cur.Item()))
	for pageID != nil {
		page, err := readLogicalPage(c.reader, pageID)
		if err != nil {
			return false, err
		}
		dc := deltatree.NewCursor(page.tree)
		ok := atLeaf(dc)
		c.stack = append(c.stack, levelFrame{page: page, cur: dc})
		if page.IsLeaf() {
			c.valid = ok
			return ok, nil
		}
		if !ok {
			c.valid = false
			return false, nil
		}
		pageID = ChildPageID(fromItem(dc.Item()))
	}
	c.valid = false
	return false, nil
}
