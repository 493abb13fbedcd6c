package sbson

import (
	"bytes"
	"encoding/binary"

	"github.com/Schaudge/sbson/internal/phf"
)

// The raw reader is pure byte-offset arithmetic over a node buffer. It owns
// no data; every function takes the node's scoped buffer per call. Nothing
// here is exported: Cursor is the public face of traversal.

const (
	tagSize             = 1
	u32Size             = 4
	arrayDescriptorSize = u32Size
	mapDescriptorSize   = 2 * u32Size
)

func getU32(buf []byte, offset int) (uint32, error) {
	if offset < 0 || offset+u32Size > len(buf) {
		return 0, ErrDocumentTooShort
	}
	return binary.LittleEndian.Uint32(buf[offset:]), nil
}

func getU32Pair(buf []byte, offset int) (uint32, uint32, error) {
	if offset < 0 || offset+2*u32Size > len(buf) {
		return 0, 0, ErrDocumentTooShort
	}
	q := binary.LittleEndian.Uint64(buf[offset:])
	return uint32(q), uint32(q >> 32), nil
}

// mapDescriptor locates one key-value pair within a map node. Offsets are
// relative to the node start.
type mapDescriptor struct {
	keyOffset   int
	keyLength   int
	valueOffset int
}

func getMapDescriptor(descriptors []byte, index int) (mapDescriptor, error) {
	keyData, valueOffset, err := getU32Pair(descriptors, mapDescriptorSize*index)
	if err != nil {
		return mapDescriptor{}, err
	}
	return mapDescriptor{
		keyOffset:   int(keyData & 0x00ffffff),
		keyLength:   int(keyData >> 24),
		valueOffset: int(valueOffset),
	}, nil
}

// chdDescriptorsOffset is the byte offset of a CHD map's descriptor table:
// tag, count, seed, then one displacement pair per bucket.
func chdDescriptorsOffset(childCount uint32) int {
	return tagSize + 2*u32Size + 2*u32Size*phf.BucketCount(int(childCount))
}

// rawCursor is the cached header of one node: its tag and, for containers,
// the declared child count.
type rawCursor struct {
	elementType ElementType
	childCount  uint32
}

// newRawCursor validates the tag byte and reads the child count of
// container nodes. No other validation happens up front; descriptor and
// payload bounds are checked on access.
func newRawCursor(buf []byte) (rawCursor, error) {
	if len(buf) < tagSize {
		return rawCursor{}, ErrDocumentTooShort
	}
	elementType := ElementType(buf[0])
	if !elementType.valid() {
		return rawCursor{}, &InvalidElementTypeError{Tag: buf[0]}
	}
	var childCount uint32
	if elementType.IsContainer() {
		var err error
		if childCount, err = getU32(buf, tagSize); err != nil {
			return rawCursor{}, err
		}
	}
	return rawCursor{elementType: elementType, childCount: childCount}, nil
}

func (rc rawCursor) ensureElementType(expected ElementType) error {
	if rc.elementType != expected {
		return &WrongElementTypeError{Actual: rc.elementType}
	}
	return nil
}

// subRange bounds-checks a child range derived from descriptor offsets
// against the node buffer.
func subRange(buf []byte, start, end int) ([]byte, error) {
	if start < 0 || start > end || end > len(buf) {
		return nil, ErrEmbeddedOffsetOutOfBounds
	}
	return buf[start:end], nil
}

// valueRangeByIndex resolves the index-th child of a container node. The
// returned range is relative to the node start; the child's header is
// parsed before returning.
func (rc rawCursor) valueRangeByIndex(buf []byte, index int) (start, end int, sub rawCursor, err error) {
	var descriptorsOffset, descriptorSize, valueOffsetInDescriptor int
	switch rc.elementType {
	case TypeArray:
		descriptorsOffset, descriptorSize, valueOffsetInDescriptor = tagSize+u32Size, arrayDescriptorSize, 0
	case TypeMap:
		descriptorsOffset, descriptorSize, valueOffsetInDescriptor = tagSize+u32Size, mapDescriptorSize, u32Size
	case TypeMapCHD:
		descriptorsOffset, descriptorSize, valueOffsetInDescriptor = chdDescriptorsOffset(rc.childCount), mapDescriptorSize, u32Size
	default:
		return 0, 0, rawCursor{}, &WrongElementTypeError{Actual: rc.elementType}
	}

	if index < 0 || index >= int(rc.childCount) {
		return 0, 0, rawCursor{}, ErrItemIndexOutOfBounds
	}

	valueStart, err := getU32(buf, descriptorsOffset+descriptorSize*index+valueOffsetInDescriptor)
	if err != nil {
		return 0, 0, rawCursor{}, err
	}
	valueEnd := len(buf)
	if index != int(rc.childCount)-1 {
		next, err := getU32(buf, descriptorsOffset+descriptorSize*(index+1)+valueOffsetInDescriptor)
		if err != nil {
			return 0, 0, rawCursor{}, err
		}
		valueEnd = int(next)
	}

	child, err := subRange(buf, int(valueStart), valueEnd)
	if err != nil {
		return 0, 0, rawCursor{}, err
	}
	sub, err = newRawCursor(child)
	if err != nil {
		return 0, 0, rawCursor{}, err
	}
	return int(valueStart), valueEnd, sub, nil
}

// mapDescriptors returns the full descriptor table of a map node.
func (rc rawCursor) mapDescriptors(buf []byte) ([]byte, error) {
	var start int
	switch rc.elementType {
	case TypeMap:
		start = tagSize + u32Size
	case TypeMapCHD:
		start = chdDescriptorsOffset(rc.childCount)
	default:
		return nil, &WrongElementTypeError{Actual: rc.elementType}
	}
	end := start + mapDescriptorSize*int(rc.childCount)
	if end < start || end > len(buf) {
		return nil, ErrDocumentTooShort
	}
	return buf[start:end], nil
}

// keyByIndex returns the raw key bytes of the index-th descriptor. The key
// length field is authoritative; the on-disk NUL after each key is not
// consulted.
func (rc rawCursor) keyByIndex(buf []byte, index int) ([]byte, error) {
	if index < 0 || index >= int(rc.childCount) {
		return nil, ErrItemIndexOutOfBounds
	}
	descriptors, err := rc.mapDescriptors(buf)
	if err != nil {
		return nil, err
	}
	d, err := getMapDescriptor(descriptors, index)
	if err != nil {
		return nil, err
	}
	if d.keyOffset < 0 || d.keyOffset+d.keyLength > len(buf) {
		return nil, ErrEmbeddedOffsetOutOfBounds
	}
	return buf[d.keyOffset : d.keyOffset+d.keyLength], nil
}

// findKey searches a map node for key, returning the descriptor index and
// the child's relative range. CHD nodes are probed in O(1); ordered nodes
// are searched in Eytzinger heap order.
func (rc rawCursor) findKey(buf []byte, key []byte) (index, start, end int, sub rawCursor, err error) {
	if rc.elementType == TypeMapCHD {
		return rc.findKeyCHD(buf, key)
	}
	if err = rc.ensureElementType(TypeMap); err != nil {
		return
	}
	descriptors, err := rc.mapDescriptors(buf)
	if err != nil {
		return
	}

	// The heap is 1-indexed: position k descends to 2k on "less" and
	// 2k+1 on "greater". k is widened to avoid overflow near the u32
	// child-count limit.
	count := uint64(rc.childCount)
	for k := uint64(1); k <= count; {
		i := int(k - 1)
		d, derr := getMapDescriptor(descriptors, i)
		if derr != nil {
			err = derr
			return
		}
		if d.keyOffset < 0 || d.keyOffset+d.keyLength > len(buf) {
			err = ErrEmbeddedOffsetOutOfBounds
			return
		}
		switch bytes.Compare(key, buf[d.keyOffset:d.keyOffset+d.keyLength]) {
		case -1:
			k = 2 * k
		case 1:
			k = 2*k + 1
		default:
			valueEnd := len(buf)
			if i+1 < int(rc.childCount) {
				next, nerr := getU32(descriptors, mapDescriptorSize*(i+1)+u32Size)
				if nerr != nil {
					err = nerr
					return
				}
				valueEnd = int(next)
			}
			child, serr := subRange(buf, d.valueOffset, valueEnd)
			if serr != nil {
				err = serr
				return
			}
			sub, err = newRawCursor(child)
			if err != nil {
				return
			}
			return i, d.valueOffset, valueEnd, sub, nil
		}
	}
	err = ErrKeyNotFound
	return
}

// findKeyCHD probes the perfect-hash table: hash the key under the stored
// seed, pick the bucket's displacement pair, displace to a slot, and
// verify the stored key. Any absent key still lands on some slot, so the
// verify is what turns a miss into KeyNotFound.
func (rc rawCursor) findKeyCHD(buf []byte, key []byte) (index, start, end int, sub rawCursor, err error) {
	if rc.childCount == 0 {
		err = ErrKeyNotFound
		return
	}
	seedOffset := tagSize + u32Size
	seed, err := getU32(buf, seedOffset)
	if err != nil {
		return
	}
	bucketCount := phf.BucketCount(int(rc.childCount))
	h := phf.Hash(key, uint64(seed))
	bucketOffset := seedOffset + u32Size + 2*u32Size*int(h.G%uint32(bucketCount))
	d1, d2, err := getU32Pair(buf, bucketOffset)
	if err != nil {
		return
	}

	i := int(phf.Displace(h.F1, h.F2, d1, d2) % rc.childCount)
	stored, err := rc.keyByIndex(buf, i)
	if err != nil {
		return
	}
	if !bytes.Equal(key, stored) {
		err = ErrKeyNotFound
		return
	}
	start, end, sub, err = rc.valueRangeByIndex(buf, i)
	return i, start, end, sub, err
}
