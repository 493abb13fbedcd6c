package sbson

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/Schaudge/sbson/internal/phf"
)

// DefaultCHDThreshold is the map size at which perfect-hash encoding
// starts paying for its construction cost.
const DefaultCHDThreshold = 8000

// chdMaxSeedAttempts bounds the seed search; seeds 0x500..0x500+10 are
// tried in order so equal inputs always encode to equal bytes.
const (
	chdFirstSeed       = 0x500
	chdMaxSeedAttempts = 11
)

// SerializationOptions controls Marshal's container layout choices.
type SerializationOptions struct {
	// CHDThreshold is the minimum entry count at which a map is encoded
	// in the perfect-hash (CHD) layout instead of the Eytzinger layout.
	// Must be at least 1.
	CHDThreshold int
}

// DefaultSerializationOptions returns the options Marshal uses.
func DefaultSerializationOptions() SerializationOptions {
	return SerializationOptions{CHDThreshold: DefaultCHDThreshold}
}

// Marshal encodes a value tree as a self-contained SBSON document using
// the default options.
//
// The value domain is nil, bool, int32, int64, int (encoded as Int64),
// uint32, uint64, float64, string, []byte, []any, and map[string]any.
func Marshal(v any) ([]byte, error) {
	return MarshalWithOptions(v, DefaultSerializationOptions())
}

// MarshalWithOptions is Marshal with explicit layout options.
func MarshalWithOptions(v any, opts SerializationOptions) ([]byte, error) {
	if opts.CHDThreshold < 1 {
		return nil, fmt.Errorf("sbson: CHD threshold must be at least 1, got %d", opts.CHDThreshold)
	}
	e := encoder{opts: opts}
	if err := e.encodeValue(v); err != nil {
		return nil, err
	}
	return e.buf, nil
}

type encoder struct {
	opts SerializationOptions
	buf  []byte
}

// reserve extends the buffer by n bytes and returns their offset. The
// region's content is unspecified until the caller backpatches it.
func (e *encoder) reserve(n int) int {
	offset := len(e.buf)
	if cap(e.buf)-offset >= n {
		e.buf = e.buf[:offset+n]
	} else {
		e.buf = append(e.buf, make([]byte, n)...)
	}
	return offset
}

func (e *encoder) putU32(v uint32) {
	var scratch [4]byte
	binary.LittleEndian.PutUint32(scratch[:], v)
	e.buf = append(e.buf, scratch[:]...)
}

func (e *encoder) putU64(v uint64) {
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], v)
	e.buf = append(e.buf, scratch[:]...)
}

func (e *encoder) encodeValue(v any) error {
	switch v := v.(type) {
	case nil:
		e.buf = append(e.buf, byte(TypeNone))
	case bool:
		if v {
			e.buf = append(e.buf, byte(TypeTrue))
		} else {
			e.buf = append(e.buf, byte(TypeFalse))
		}
	case int32:
		e.buf = append(e.buf, byte(TypeInt32))
		e.putU32(uint32(v))
	case uint32:
		e.buf = append(e.buf, byte(TypeUInt32))
		e.putU32(v)
	case int64:
		e.buf = append(e.buf, byte(TypeInt64))
		e.putU64(uint64(v))
	case int:
		e.buf = append(e.buf, byte(TypeInt64))
		e.putU64(uint64(int64(v)))
	case uint64:
		e.buf = append(e.buf, byte(TypeUInt64))
		e.putU64(v)
	case float64:
		e.buf = append(e.buf, byte(TypeDouble))
		e.putU64(math.Float64bits(v))
	case string:
		e.buf = append(e.buf, byte(TypeString))
		e.buf = append(e.buf, v...)
		e.buf = append(e.buf, 0)
	case []byte:
		e.buf = append(e.buf, byte(TypeBinary))
		e.buf = append(e.buf, v...)
	case []any:
		return e.encodeArray(v)
	case map[string]any:
		return e.encodeMap(v)
	default:
		return fmt.Errorf("sbson: cannot serialize value of type %T", v)
	}
	return nil
}

// encodeArray writes the count, streams each child's start offset into
// the descriptor table, and encodes the children in place. Offsets are
// relative to the node start, so they are known before the child is
// encoded.
func (e *encoder) encodeArray(items []any) error {
	nodeStart := len(e.buf)
	e.buf = append(e.buf, byte(TypeArray))
	e.putU32(uint32(len(items)))
	descriptors := e.reserve(arrayDescriptorSize * len(items))
	for i, item := range items {
		binary.LittleEndian.PutUint32(e.buf[descriptors+arrayDescriptorSize*i:], uint32(len(e.buf)-nodeStart))
		if err := e.encodeValue(item); err != nil {
			return err
		}
	}
	return nil
}

type mapEntry struct {
	key   string
	value any
}

func (e *encoder) encodeMap(m map[string]any) error {
	entries := make([]mapEntry, 0, len(m))
	for k, v := range m {
		entries = append(entries, mapEntry{key: k, value: v})
	}
	if len(entries) >= e.opts.CHDThreshold {
		return e.encodeMapCHD(entries)
	}
	return e.encodeMapEytzinger(entries)
}

// encodeMapEytzinger sorts entries by byte-lexicographic key and places
// them in Eytzinger heap order, so a reader's heap-shaped binary search
// visits descriptors in array order.
func (e *encoder) encodeMapEytzinger(entries []mapEntry) error {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].key < entries[j].key
	})
	perm := eytzingerOrder(len(entries))
	ordered := make([]mapEntry, len(entries))
	for pos, sortedIndex := range perm {
		ordered[pos] = entries[sortedIndex]
	}

	nodeStart := len(e.buf)
	e.buf = append(e.buf, byte(TypeMap))
	e.putU32(uint32(len(ordered)))
	return e.encodeKVs(ordered, nodeStart)
}

// encodeMapCHD builds a perfect-hash table over the keys, then writes the
// entries in their hash-assigned slot order after the seed and the
// per-bucket displacement pairs.
func (e *encoder) encodeMapCHD(entries []mapEntry) error {
	keys := make([]string, len(entries))
	for i, entry := range entries {
		keys[i] = entry.key
	}
	var state phf.HashState
	ok := false
	for i := 0; i < chdMaxSeedAttempts && !ok; i++ {
		state, ok = phf.TryGenerateHash(keys, chdFirstSeed+uint32(i))
	}
	if !ok {
		return ErrCHDConstructionFailed
	}

	ordered := make([]mapEntry, len(entries))
	for slot, sourceIndex := range state.Map {
		ordered[slot] = entries[sourceIndex]
	}

	nodeStart := len(e.buf)
	e.buf = append(e.buf, byte(TypeMapCHD))
	e.putU32(uint32(len(ordered)))
	e.putU32(state.Seed)
	for _, d := range state.Disps {
		e.putU32(d[0])
		e.putU32(d[1])
	}
	return e.encodeKVs(ordered, nodeStart)
}

// encodeKVs writes a map node's descriptor table, NUL-terminated keys,
// and recursively encoded values, in descriptor order. The table is
// reserved up front and backpatched once every entry's final key offset,
// key length, and value offset are known.
func (e *encoder) encodeKVs(entries []mapEntry, nodeStart int) error {
	descriptors := e.reserve(mapDescriptorSize * len(entries))

	keyOffsets := make([]int, len(entries))
	for i, entry := range entries {
		if len(entry.key) > 255 {
			return fmt.Errorf("%w: %q", ErrKeyTooLong, entry.key[:32]+"...")
		}
		keyOffsets[i] = len(e.buf) - nodeStart
		e.buf = append(e.buf, entry.key...)
		e.buf = append(e.buf, 0)
	}

	for i, entry := range entries {
		valueOffset := len(e.buf) - nodeStart
		if keyOffsets[i] > 0x00ffffff {
			return fmt.Errorf("sbson: map node too large: key offset %d exceeds the 24-bit descriptor field", keyOffsets[i])
		}
		if err := e.encodeValue(entry.value); err != nil {
			return err
		}
		d := e.buf[descriptors+mapDescriptorSize*i:]
		binary.LittleEndian.PutUint32(d, uint32(len(entry.key))<<24|uint32(keyOffsets[i]))
		binary.LittleEndian.PutUint32(d[u32Size:], uint32(valueOffset))
	}
	return nil
}

// eytzingerOrder returns the permutation perm such that perm[pos] is the
// sorted-sequence index stored at descriptor position pos. It is the
// in-order depth-first traversal of the 1-indexed implicit binary heap:
// the subtree below each position holds a contiguous run of the sorted
// sequence.
func eytzingerOrder(n int) []int {
	perm := make([]int, n)
	next := 0
	var place func(k int)
	place = func(k int) {
		if k <= n {
			place(2 * k)
			perm[k-1] = next
			next++
			place(2*k + 1)
		}
	}
	place(1)
	return perm
}
