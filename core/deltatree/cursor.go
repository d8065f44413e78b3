package deltatree

// frame is one step of a Cursor's descent path, retaining the decoded
// item at that node so ancestor bounds never need re-decoding.
type frame struct {
	offset uint32
	item   Item
}

// Cursor walks a DeltaTree in key order. It retains its full descent
// stack so Next/Prev need not re-descend from the root. Seeks accept a
// hint cursor, but the hint has no effect: every seek descends from the
// root.
type Cursor struct {
	tree  *DeltaTree
	stack []frame
	valid bool
}

// NewCursor returns an unpositioned cursor over t.
func NewCursor(t *DeltaTree) *Cursor {
	return &Cursor{tree: t}
}

// Valid reports whether the cursor currently references an item.
func (c *Cursor) Valid() bool { return c.valid }

// Item returns the item at the cursor's current position. Valid() must
// be true.
func (c *Cursor) Item() Item {
	return c.stack[len(c.stack)-1].item
}

// SeekGE positions the cursor at the first non-deleted item with
// Compare(item, target) >= 0. hint is accepted but ignored; the descent
// always starts at the root.
func (c *Cursor) SeekGE(target Item, hint *Cursor) bool {
	return c.seek(target, hint, func(cmp int) bool { return cmp >= 0 }, true)
}

// SeekLE positions the cursor at the last non-deleted item with
// Compare(item, target) <= 0.
func (c *Cursor) SeekLE(target Item, hint *Cursor) bool {
	return c.seek(target, hint, func(cmp int) bool { return cmp <= 0 }, false)
}

// seek performs a standard BST descent, keeping the stack of visited
// nodes, then adjusts to the nearest accepted (non-deleted, predicate-
// satisfying) neighbor via Next/Prev if the landing node is rejected.
func (c *Cursor) seek(target Item, hint *Cursor, accept func(int) bool, forward bool) bool {
	offset := c.tree.root()
	_ = hint // the hint narrows nothing structurally beyond the root in this implementation; retained for API compatibility with callers that pass one.
	c.stack = c.stack[:0]
	var best []frame
	var prevBound, nextBound Item

	for offset != 0 {
		n := c.tree.readNode(offset)
		item := c.tree.decode(n, prevBound, nextBound)
		c.stack = append(c.stack, frame{offset: offset, item: item})
		cmp := Compare(item, target)
		if accept(cmp) {
			best = append([]frame(nil), c.stack...)
			if forward {
				offset = n.left
				if offset != 0 {
					nextBound = item
				}
			} else {
				offset = n.right
				if offset != 0 {
					prevBound = item
				}
			}
		} else {
			if forward {
				offset = n.right
				if offset != 0 {
					prevBound = item
				}
			} else {
				offset = n.left
				if offset != 0 {
					nextBound = item
				}
			}
		}
	}

	if best == nil {
		c.stack = c.stack[:0]
		c.valid = false
		return false
	}
	c.stack = best
	c.valid = true
	if c.tree.isDeletedAt(c.stack[len(c.stack)-1].offset) {
		if forward {
			return c.Next()
		}
		return c.Prev()
	}
	return true
}

func (t *DeltaTree) isDeletedAt(offset uint32) bool {
	return t.isDeleted(t.readNode(offset))
}

// Next advances to the next non-deleted item in key order.
func (c *Cursor) Next() bool {
	for c.advanceRaw() {
		if !c.tree.isDeletedAt(c.stack[len(c.stack)-1].offset) {
			return true
		}
	}
	c.valid = false
	return false
}

// Prev retreats to the previous non-deleted item in key order.
func (c *Cursor) Prev() bool {
	for c.retreatRaw() {
		if !c.tree.isDeletedAt(c.stack[len(c.stack)-1].offset) {
			return true
		}
	}
	c.valid = false
	return false
}

// advanceRaw moves to the structural in-order successor, regardless of
// deleted status.
func (c *Cursor) advanceRaw() bool {
	if len(c.stack) == 0 {
		return false
	}
	top := c.stack[len(c.stack)-1]
	n := c.tree.readNode(top.offset)
	if n.right != 0 {
		offset := n.right
		// descend to the leftmost node of the right subtree
		nextBound := c.rightSubtreeNextBound()
		prevBound := top.item
		for {
			nn := c.tree.readNode(offset)
			item := c.tree.decode(nn, prevBound, nextBound)
			c.stack = append(c.stack, frame{offset: offset, item: item})
			if nn.left == 0 {
				break
			}
			nextBound = item
			offset = nn.left
		}
		c.valid = true
		return true
	}
	// no right child: pop until we ascend via a left-link
	for len(c.stack) > 1 {
		child := c.stack[len(c.stack)-1]
		c.stack = c.stack[:len(c.stack)-1]
		parent := c.stack[len(c.stack)-1]
		pn := c.tree.readNode(parent.offset)
		if pn.left == child.offset {
			c.valid = true
			return true
		}
	}
	c.stack = c.stack[:0]
	c.valid = false
	return false
}

// retreatRaw moves to the structural in-order predecessor.
func (c *Cursor) retreatRaw() bool {
	if len(c.stack) == 0 {
		return false
	}
	top := c.stack[len(c.stack)-1]
	n := c.tree.readNode(top.offset)
	if n.left != 0 {
		offset := n.left
		prevBound := c.leftSubtreePrevBound()
		nextBound := top.item
		for {
			nn := c.tree.readNode(offset)
			item := c.tree.decode(nn, prevBound, nextBound)
			c.stack = append(c.stack, frame{offset: offset, item: item})
			if nn.right == 0 {
				break
			}
			prevBound = item
			offset = nn.right
		}
		c.valid = true
		return true
	}
	for len(c.stack) > 1 {
		child := c.stack[len(c.stack)-1]
		c.stack = c.stack[:len(c.stack)-1]
		parent := c.stack[len(c.stack)-1]
		pn := c.tree.readNode(parent.offset)
		if pn.right == child.offset {
			c.valid = true
			return true
		}
	}
	c.stack = c.stack[:0]
	c.valid = false
	return false
}

// rightSubtreeNextBound returns the nearest ancestor bound greater than
// everything in the current top-of-stack node's right subtree: the item
// at the closest ancestor we descended into via a left-link, if any.
func (c *Cursor) rightSubtreeNextBound() Item {
	for i := len(c.stack) - 2; i >= 0; i-- {
		parent := c.tree.readNode(c.stack[i].offset)
		if parent.left == c.stack[i+1].offset {
			return c.stack[i].item
		}
	}
	return Item{}
}

// leftSubtreePrevBound is the mirror of rightSubtreeNextBound for descents
// into a left subtree.
func (c *Cursor) leftSubtreePrevBound() Item {
	for i := len(c.stack) - 2; i >= 0; i-- {
		parent := c.tree.readNode(c.stack[i].offset)
		if parent.right == c.stack[i+1].offset {
			return c.stack[i].item
		}
	}
	return Item{}
}

// First positions the cursor at the first non-deleted item.
func (c *Cursor) First() bool {
	return c.SeekGE(Item{}, nil)
}

// Last positions the cursor at the last non-deleted item by descending
// to the rightmost node, then stepping back past any trailing tombstones.
func (c *Cursor) Last() bool {
	offset := c.tree.root()
	if offset == 0 {
		c.stack = c.stack[:0]
		c.valid = false
		return false
	}
	c.stack = c.stack[:0]
	var prevBound, nextBound Item
	for offset != 0 {
		n := c.tree.readNode(offset)
		item := c.tree.decode(n, prevBound, nextBound)
		c.stack = append(c.stack, frame{offset: offset, item: item})
		if n.right == 0 {
			break
		}
		prevBound = item
		offset = n.right
	}
	c.valid = true
	if c.tree.isDeletedAt(c.stack[len(c.stack)-1].offset) {
		return c.Prev()
	}
	return true
}
