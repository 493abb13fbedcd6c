package sbson

// CachedMapCursor wraps a map-node cursor with a precomputed key index so
// repeated lookups of varied keys cost one Go map probe instead of an
// Eytzinger search. It affects nothing on the wire and preserves the
// cursor's invariants and error kinds.
type CachedMapCursor struct {
	cursor   Cursor
	children map[string]childSpan
}

type childSpan struct {
	start, end int
}

// NewCachedMapCursor builds the key index for a Map or MapCHD node.
// Malformed entries are skipped; their keys simply stay absent.
func NewCachedMapCursor(c Cursor) (*CachedMapCursor, error) {
	it, err := c.IterMap()
	if err != nil {
		return nil, err
	}
	children := make(map[string]childSpan, c.ChildrenCount())
	for it.Next() {
		if it.Err() != nil {
			continue
		}
		v := it.Value()
		children[it.Key()] = childSpan{start: v.start, end: v.end}
	}
	return &CachedMapCursor{cursor: c, children: children}, nil
}

// GetByKey returns a sub-cursor for the map child with the given key in
// O(1).
func (m *CachedMapCursor) GetByKey(key string) (Cursor, error) {
	span, ok := m.children[key]
	if !ok {
		return Cursor{}, ErrKeyNotFound
	}
	return newCursorWithRange(m.cursor.storage, span.start, span.end)
}

// GetByIndex falls through to the wrapped cursor; the key index knows
// nothing about positions.
func (m *CachedMapCursor) GetByIndex(index int) (Cursor, error) {
	return m.cursor.GetByIndex(index)
}

// Cursor returns the wrapped map-node cursor.
func (m *CachedMapCursor) Cursor() Cursor {
	return m.cursor
}

// Len returns the number of well-formed entries in the key index.
func (m *CachedMapCursor) Len() int {
	return len(m.children)
}
