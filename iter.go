package sbson

// MapIter steps through the entries of a map node in on-wire descriptor
// order: Eytzinger order for ordered maps, hash-assigned order for CHD
// maps.
//
//	it, err := cur.IterMap()
//	if err != nil {
//		return err
//	}
//	for it.Next() {
//		if it.Err() != nil {
//			continue // or propagate; the entry is malformed
//		}
//		fn(it.Key(), it.Value())
//	}
//
// A malformed entry (bad descriptor, key outside the node, invalid child
// header) is delivered as an error item: Next still returns true and Err
// reports the entry's error. Callers choose to skip or propagate.
type MapIter struct {
	c     Cursor
	index int
	key   string
	value Cursor
	err   error
}

// IterMap returns an iterator over the entries of a map node.
func (c Cursor) IterMap() (*MapIter, error) {
	if !c.raw.elementType.IsMap() {
		return nil, &WrongElementTypeError{Actual: c.raw.elementType}
	}
	return &MapIter{c: c}, nil
}

// Next advances to the next entry. It returns false once all declared
// entries have been visited.
func (it *MapIter) Next() bool {
	if it.index >= int(it.c.raw.childCount) {
		return false
	}
	i := it.index
	it.index++
	it.key, it.value, it.err = "", Cursor{}, nil

	key, err := it.c.GetKeyAt(i)
	if err != nil {
		it.err = err
		return true
	}
	value, err := it.c.GetByIndex(i)
	if err != nil {
		it.err = err
		return true
	}
	it.key, it.value = key, value
	return true
}

// Err returns the current entry's error, or nil if the entry is valid.
func (it *MapIter) Err() error { return it.err }

// Key returns the current entry's key. It aliases the storage buffer.
func (it *MapIter) Key() string { return it.key }

// Value returns the current entry's sub-cursor.
func (it *MapIter) Value() Cursor { return it.value }

// ArrayIter steps through the elements of an array node in index order,
// with the same error-item contract as MapIter.
type ArrayIter struct {
	c     Cursor
	index int
	value Cursor
	err   error
}

// IterArray returns an iterator over the elements of an array node.
func (c Cursor) IterArray() (*ArrayIter, error) {
	if err := c.raw.ensureElementType(TypeArray); err != nil {
		return nil, err
	}
	return &ArrayIter{c: c}, nil
}

// Next advances to the next element. It returns false once all declared
// elements have been visited.
func (it *ArrayIter) Next() bool {
	if it.index >= int(it.c.raw.childCount) {
		return false
	}
	i := it.index
	it.index++
	it.value, it.err = it.c.GetByIndex(i)
	return true
}

// Err returns the current element's error, or nil if the element is valid.
func (it *ArrayIter) Err() error { return it.err }

// Value returns the current element's sub-cursor.
func (it *ArrayIter) Value() Cursor { return it.value }
