package sbson

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	gunsafe "github.com/grailbio/base/unsafe"
)

// Cursor identifies one node of an SBSON document: a storage handle, a
// [start,end) window within the storage's buffer, and the node's cached
// header. Cursors are immutable; descent returns new cursors over
// sub-ranges of the same buffer without copying payload. Copying a Cursor
// is shallow and cheap.
type Cursor struct {
	storage Storage
	start   int
	end     int
	raw     rawCursor
}

// NewCursor returns a cursor over the document that spans the entire
// storage buffer. The tag byte is validated, and container counts read,
// before any accessor can run.
func NewCursor(storage Storage) (Cursor, error) {
	buf := storage.Bytes()
	raw, err := newRawCursor(buf)
	if err != nil {
		return Cursor{}, err
	}
	return Cursor{storage: storage, start: 0, end: len(buf), raw: raw}, nil
}

// NewCursorFromBytes is shorthand for NewCursor over a plain byte slice.
func NewCursorFromBytes(buf []byte) (Cursor, error) {
	return NewCursor(Bytes(buf))
}

// newCursorWithRange builds a cursor for a known absolute range,
// revalidating the node header.
func newCursorWithRange(storage Storage, start, end int) (Cursor, error) {
	buf := storage.Bytes()
	if start < 0 || start > end || end > len(buf) {
		return Cursor{}, ErrDocumentTooShort
	}
	raw, err := newRawCursor(buf[start:end])
	if err != nil {
		return Cursor{}, err
	}
	return Cursor{storage: storage, start: start, end: end, raw: raw}, nil
}

// scoped returns the node's bytes, tag included.
func (c Cursor) scoped() []byte {
	return c.storage.Bytes()[c.start:c.end]
}

// Raw returns the node's full byte range, tag byte included. The slice
// aliases the storage buffer and must not be modified.
func (c Cursor) Raw() []byte {
	return c.scoped()
}

// Payload returns the node's bytes after the tag byte. The slice aliases
// the storage buffer and must not be modified.
func (c Cursor) Payload() []byte {
	return c.storage.Bytes()[c.start+tagSize : c.end]
}

// ElementType returns the node's tag.
func (c Cursor) ElementType() ElementType {
	return c.raw.elementType
}

// ChildrenCount returns the declared child count for containers and 0 for
// leaves.
func (c Cursor) ChildrenCount() int {
	return int(c.raw.childCount)
}

// Storage returns the handle this cursor reads through. All sub-cursors
// share it.
func (c Cursor) Storage() Storage {
	return c.storage
}

// GetByIndex returns a sub-cursor for the index-th child of an array or
// map node. Map children are indexed in on-wire descriptor order.
func (c Cursor) GetByIndex(index int) (Cursor, error) {
	start, end, sub, err := c.raw.valueRangeByIndex(c.scoped(), index)
	if err != nil {
		return Cursor{}, err
	}
	return Cursor{storage: c.storage, start: c.start + start, end: c.start + end, raw: sub}, nil
}

// GetByKey returns a sub-cursor for the map child with the given key.
func (c Cursor) GetByKey(key string) (Cursor, error) {
	_, cur, err := c.FindKey(key)
	return cur, err
}

// FindKey is GetByKey that also reports the child's descriptor index. The
// index can be replayed through GetByIndex or stored in a path vector.
func (c Cursor) FindKey(key string) (int, Cursor, error) {
	index, start, end, sub, err := c.raw.findKey(c.scoped(), []byte(key))
	if err != nil {
		return 0, Cursor{}, err
	}
	return index, Cursor{storage: c.storage, start: c.start + start, end: c.start + end, raw: sub}, nil
}

// GetKeyAt returns the key of the index-th descriptor of a map node. The
// exact position of a given key is layout defined: Eytzinger order for
// ordered maps, hash-assigned order for CHD maps.
//
// The returned string aliases the storage buffer.
func (c Cursor) GetKeyAt(index int) (string, error) {
	key, err := c.raw.keyByIndex(c.scoped(), index)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(key) {
		return "", ErrInvalidUTF8
	}
	return gunsafe.BytesToString(key), nil
}

// PathSegment is one step of a Goto path: either a map key or an array
// index.
type PathSegment struct {
	key   string
	index int
	isKey bool
}

// Key returns a path segment that descends into a map child.
func Key(key string) PathSegment {
	return PathSegment{key: key, isKey: true}
}

// Index returns a path segment that descends into an array or map child
// by position.
func Index(index int) PathSegment {
	return PathSegment{index: index}
}

// Goto applies each path segment in order and returns the cursor it
// arrives at. An empty path returns a cursor equivalent to c. The first
// failing segment's error is returned.
func (c Cursor) Goto(segments ...PathSegment) (Cursor, error) {
	buf := c.scoped()
	raw := c.raw
	absStart := c.start
	for _, segment := range segments {
		var start, end int
		var sub rawCursor
		var err error
		if segment.isKey {
			_, start, end, sub, err = raw.findKey(buf, []byte(segment.key))
		} else {
			start, end, sub, err = raw.valueRangeByIndex(buf, segment.index)
		}
		if err != nil {
			return Cursor{}, err
		}
		buf = buf[start:end]
		raw = sub
		absStart += start
	}
	return Cursor{storage: c.storage, start: absStart, end: absStart + len(buf), raw: raw}, nil
}

// AsBool returns the value of a True or False node.
func (c Cursor) AsBool() (bool, error) {
	switch c.raw.elementType {
	case TypeTrue:
		return true, nil
	case TypeFalse:
		return false, nil
	}
	return false, &WrongElementTypeError{Actual: c.raw.elementType}
}

// AsNone verifies that the node is None.
func (c Cursor) AsNone() error {
	return c.raw.ensureElementType(TypeNone)
}

func (c Cursor) scalarPayload(expected ElementType, width int) ([]byte, error) {
	if err := c.raw.ensureElementType(expected); err != nil {
		return nil, err
	}
	p := c.Payload()
	if len(p) < width {
		return nil, ErrDocumentTooShort
	}
	return p, nil
}

// AsInt32 returns the value of an Int32 node.
func (c Cursor) AsInt32() (int32, error) {
	p, err := c.scalarPayload(TypeInt32, 4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(p)), nil
}

// AsUint32 returns the value of a UInt32 node.
func (c Cursor) AsUint32() (uint32, error) {
	p, err := c.scalarPayload(TypeUInt32, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(p), nil
}

// AsInt64 returns the value of an Int64 node.
func (c Cursor) AsInt64() (int64, error) {
	p, err := c.scalarPayload(TypeInt64, 8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(p)), nil
}

// AsUint64 returns the value of a UInt64 node.
func (c Cursor) AsUint64() (uint64, error) {
	p, err := c.scalarPayload(TypeUInt64, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(p), nil
}

// AsDouble returns the value of a Double node.
func (c Cursor) AsDouble() (float64, error) {
	p, err := c.scalarPayload(TypeDouble, 8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(p)), nil
}

// AsString returns the value of a String node without its NUL terminator.
// The payload must hold exactly one NUL, at its end, and must be valid
// UTF-8.
//
// The returned string aliases the storage buffer; it remains valid for
// the storage handle's lifetime and costs no allocation.
func (c Cursor) AsString() (string, error) {
	if err := c.raw.ensureElementType(TypeString); err != nil {
		return "", err
	}
	p := c.Payload()
	if len(p) == 0 || p[len(p)-1] != 0 {
		return "", ErrUnterminatedString
	}
	s := p[:len(p)-1]
	for _, b := range s {
		if b == 0 {
			return "", ErrUnterminatedString
		}
	}
	if !utf8.Valid(s) {
		return "", ErrInvalidUTF8
	}
	return gunsafe.BytesToString(s), nil
}

// AsBytes returns the payload of a Binary node. The slice aliases the
// storage buffer and must not be modified.
func (c Cursor) AsBytes() ([]byte, error) {
	if err := c.raw.ensureElementType(TypeBinary); err != nil {
		return nil, err
	}
	return c.Payload(), nil
}
