package sbson_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"

	"github.com/Schaudge/sbson"
)

func readVector(t testing.TB, name string) []byte {
	t.Helper()
	doc, err := os.ReadFile(filepath.Join("testdata", name))
	assert.NoError(t, err)
	return doc
}

// sanityTree is the value tree behind testdata/sanity.sbson and
// testdata/sanity_phf.sbson.
func sanityTree() map[string]any {
	return map[string]any{
		"3":     []byte("beep boop"),
		"BLARG": []any{int64(1), int64(2), true, false, nil},
		"FLORP": map[string]any{"X": int64(255)},
		"help me i'm trapped in a format factory help me before they": "...",
	}
}

func checkSanity(t *testing.T, cur sbson.Cursor) {
	t.Helper()
	assert.EQ(t, cur.ChildrenCount(), 4)

	three, err := cur.GetByKey("3")
	assert.NoError(t, err)
	beep, err := three.AsBytes()
	assert.NoError(t, err)
	assert.EQ(t, beep, []byte("beep boop"))

	blarg, err := cur.GetByKey("BLARG")
	assert.NoError(t, err)
	assert.EQ(t, blarg.ElementType(), sbson.TypeArray)
	assert.EQ(t, blarg.ChildrenCount(), 5)

	first, err := blarg.GetByIndex(0)
	assert.NoError(t, err)
	n, err := first.AsInt64()
	assert.NoError(t, err)
	assert.EQ(t, n, int64(1))

	second, err := blarg.GetByIndex(1)
	assert.NoError(t, err)
	n, err = second.AsInt64()
	assert.NoError(t, err)
	assert.EQ(t, n, int64(2))

	for i, want := range []bool{true, false} {
		item, err := blarg.GetByIndex(2 + i)
		assert.NoError(t, err)
		b, err := item.AsBool()
		assert.NoError(t, err)
		assert.EQ(t, b, want)
	}
	last, err := blarg.GetByIndex(4)
	assert.NoError(t, err)
	assert.EQ(t, last.ElementType(), sbson.TypeNone)
	assert.NoError(t, last.AsNone())

	x, err := cur.Goto(sbson.Key("FLORP"), sbson.Key("X"))
	assert.NoError(t, err)
	n, err = x.AsInt64()
	assert.NoError(t, err)
	assert.EQ(t, n, int64(255))

	help, err := cur.GetByKey("help me i'm trapped in a format factory help me before they")
	assert.NoError(t, err)
	s, err := help.AsString()
	assert.NoError(t, err)
	assert.EQ(t, s, "...")
}

func TestSanityDocument(t *testing.T) {
	cur, err := sbson.NewCursorFromBytes(readVector(t, "sanity.sbson"))
	assert.NoError(t, err)
	assert.EQ(t, cur.ElementType(), sbson.TypeMap)
	checkSanity(t, cur)
}

func TestSanityDocumentCHD(t *testing.T) {
	cur, err := sbson.NewCursorFromBytes(readVector(t, "sanity_phf.sbson"))
	assert.NoError(t, err)
	assert.EQ(t, cur.ElementType(), sbson.TypeMapCHD)
	checkSanity(t, cur)
}

// Key lookups on an ordered map must agree with a naive linear scan over
// the declared entries, present and absent keys alike.
func TestEytzingerMatchesLinearScan(t *testing.T) {
	keys := []string{
		"", "a", "aa", "ab", "b", "ba", "zz",
		"item_0001", "item_0002", "item_0010", "item_0100",
		"\x01", "k\xc3\xa9y",
	}
	for n := 0; n <= len(keys); n++ {
		tree := make(map[string]any, n)
		for i, k := range keys[:n] {
			tree[k] = uint32(i)
		}
		doc, err := sbson.Marshal(tree)
		assert.NoError(t, err)
		cur, err := sbson.NewCursorFromBytes(doc)
		assert.NoError(t, err)

		linear := make(map[string]uint32, n)
		for i := 0; i < cur.ChildrenCount(); i++ {
			key, err := cur.GetKeyAt(i)
			assert.NoError(t, err)
			value, err := cur.GetByIndex(i)
			assert.NoError(t, err)
			v, err := value.AsUint32()
			assert.NoError(t, err)
			linear[key] = v
		}
		assert.EQ(t, len(linear), n)

		for key, want := range linear {
			value, err := cur.GetByKey(key)
			assert.NoError(t, err)
			got, err := value.AsUint32()
			assert.NoError(t, err)
			expect.EQ(t, got, want, "key %q, n=%d", key, n)
		}
		for _, miss := range []string{"nope", "item_", "zzz", "\x00"} {
			_, err := cur.GetByKey(miss)
			expect.True(t, errors.Is(err, sbson.ErrKeyNotFound), "key %q, n=%d: %v", miss, n, err)
		}
	}
}

func TestFindKeyRoundTripsThroughIndex(t *testing.T) {
	for _, name := range []string{"sanity.sbson", "sanity_phf.sbson"} {
		cur, err := sbson.NewCursorFromBytes(readVector(t, name))
		assert.NoError(t, err)
		for i := 0; i < cur.ChildrenCount(); i++ {
			key, err := cur.GetKeyAt(i)
			assert.NoError(t, err)
			index, byKey, err := cur.FindKey(key)
			assert.NoError(t, err)
			assert.EQ(t, index, i)
			byIndex, err := cur.GetByIndex(i)
			assert.NoError(t, err)
			assert.EQ(t, byKey.Raw(), byIndex.Raw())
		}
	}
}

func TestGoto(t *testing.T) {
	cur, err := sbson.NewCursorFromBytes(readVector(t, "sanity.sbson"))
	assert.NoError(t, err)

	v, err := cur.Goto(sbson.Key("BLARG"), sbson.Index(0))
	assert.NoError(t, err)
	n, err := v.AsInt64()
	assert.NoError(t, err)
	assert.EQ(t, n, int64(1))

	// An empty path lands on an equivalent cursor.
	same, err := cur.Goto()
	assert.NoError(t, err)
	assert.EQ(t, same.ElementType(), cur.ElementType())
	assert.EQ(t, same.Raw(), cur.Raw())

	// The first failing segment's error is surfaced.
	_, err = cur.Goto(sbson.Key("BLARG"), sbson.Key("X"))
	var wrongType *sbson.WrongElementTypeError
	assert.True(t, errors.As(err, &wrongType))
	assert.EQ(t, wrongType.Actual, sbson.TypeArray)

	_, err = cur.Goto(sbson.Key("missing"), sbson.Index(0))
	assert.True(t, errors.Is(err, sbson.ErrKeyNotFound))

	_, err = cur.Goto(sbson.Key("BLARG"), sbson.Index(5))
	assert.True(t, errors.Is(err, sbson.ErrItemIndexOutOfBounds))
}

func TestAccessorTypeChecks(t *testing.T) {
	cur, err := sbson.NewCursorFromBytes(readVector(t, "sanity.sbson"))
	assert.NoError(t, err)

	_, err = cur.AsInt64()
	var wrongType *sbson.WrongElementTypeError
	assert.True(t, errors.As(err, &wrongType))
	assert.EQ(t, wrongType.Actual, sbson.TypeMap)

	_, err = cur.AsString()
	assert.NotNil(t, err)
	_, err = cur.IterArray()
	assert.NotNil(t, err)

	blarg, err := cur.GetByKey("BLARG")
	assert.NoError(t, err)
	_, err = blarg.GetByKey("X")
	assert.True(t, errors.As(err, &wrongType))
	_, err = blarg.GetKeyAt(0)
	assert.True(t, errors.As(err, &wrongType))

	_, err = blarg.GetByIndex(5)
	assert.True(t, errors.Is(err, sbson.ErrItemIndexOutOfBounds))
	_, err = blarg.GetByIndex(-1)
	assert.True(t, errors.Is(err, sbson.ErrItemIndexOutOfBounds))
}

func TestConstructionErrors(t *testing.T) {
	_, err := sbson.NewCursorFromBytes(nil)
	assert.True(t, errors.Is(err, sbson.ErrDocumentTooShort))

	_, err = sbson.NewCursorFromBytes([]byte{0x99})
	var invalid *sbson.InvalidElementTypeError
	assert.True(t, errors.As(err, &invalid))
	assert.EQ(t, invalid.Tag, byte(0x99))

	// A container tag with a truncated count field.
	_, err = sbson.NewCursorFromBytes([]byte{0x03, 0x01, 0x00})
	assert.True(t, errors.Is(err, sbson.ErrDocumentTooShort))
}

func TestMalformedStrings(t *testing.T) {
	for _, doc := range [][]byte{
		{0x02},                       // empty payload, no terminator
		{0x02, 'h', 'i'},             // no terminator
		{0x02, 'h', 0x00, 'i', 0x00}, // interior NUL
	} {
		cur, err := sbson.NewCursorFromBytes(doc)
		assert.NoError(t, err)
		_, err = cur.AsString()
		assert.True(t, errors.Is(err, sbson.ErrUnterminatedString), "doc %v: %v", doc, err)
	}

	cur, err := sbson.NewCursorFromBytes([]byte{0x02, 0xff, 0xfe, 0x00})
	assert.NoError(t, err)
	_, err = cur.AsString()
	assert.True(t, errors.Is(err, sbson.ErrInvalidUTF8))
}

func TestTruncatedScalars(t *testing.T) {
	doc, err := sbson.Marshal(int64(7))
	assert.NoError(t, err)
	cur, err := sbson.NewCursorFromBytes(doc[:5])
	assert.NoError(t, err)
	_, err = cur.AsInt64()
	assert.True(t, errors.Is(err, sbson.ErrDocumentTooShort))
}

// Leaf documents are valid top-level nodes.
func TestLeafDocument(t *testing.T) {
	doc, err := sbson.Marshal("hello")
	assert.NoError(t, err)
	cur, err := sbson.NewCursorFromBytes(doc)
	assert.NoError(t, err)
	assert.EQ(t, cur.ElementType(), sbson.TypeString)
	assert.EQ(t, cur.ChildrenCount(), 0)
	s, err := cur.AsString()
	assert.NoError(t, err)
	assert.EQ(t, s, "hello")
}

// walk exercises every public operation under a cursor, bounded so that
// corrupt child counts cannot make it spin.
func walk(c sbson.Cursor, depth int) {
	if depth > 6 {
		return
	}
	c.AsBool()
	c.AsNone()
	c.AsInt32()
	c.AsUint32()
	c.AsInt64()
	c.AsUint64()
	c.AsDouble()
	c.AsString()
	c.AsBytes()

	n := c.ChildrenCount()
	if n > 64 {
		n = 64
	}
	for i := 0; i < n; i++ {
		if c.ElementType().IsMap() {
			if key, err := c.GetKeyAt(i); err == nil {
				c.GetByKey(key)
			}
		}
		if sub, err := c.GetByIndex(i); err == nil {
			walk(sub, depth+1)
		}
	}
	if c.ElementType().IsMap() {
		c.GetByKey("missing")
		if it, err := c.IterMap(); err == nil {
			for i := 0; it.Next() && i < 64; i++ {
				if it.Err() == nil {
					walk(it.Value(), depth+1)
				}
			}
		}
	}
	if it, err := c.IterArray(); err == nil {
		for i := 0; it.Next() && i < 64; i++ {
			if it.Err() == nil {
				walk(it.Value(), depth+1)
			}
		}
	}
}

// Every prefix of a valid document must fail with typed errors, never a
// panic or an out-of-range access.
func TestTruncationSafety(t *testing.T) {
	for _, name := range []string{"sanity.sbson", "sanity_phf.sbson"} {
		doc := readVector(t, name)
		for n := 0; n <= len(doc); n++ {
			cur, err := sbson.NewCursorFromBytes(doc[:n])
			if err != nil {
				continue
			}
			walk(cur, 0)
		}
	}
}

// Flipping any single byte must likewise never escape as a panic.
func TestCorruptionSafety(t *testing.T) {
	doc := readVector(t, "sanity_phf.sbson")
	for i := range doc {
		corrupt := make([]byte, len(doc))
		copy(corrupt, doc)
		corrupt[i] ^= 0xff
		cur, err := sbson.NewCursorFromBytes(corrupt)
		if err != nil {
			continue
		}
		walk(cur, 0)
	}
}

func FuzzCursorWalk(f *testing.F) {
	f.Add(readVector(f, "sanity.sbson"))
	f.Add(readVector(f, "sanity_phf.sbson"))
	f.Add([]byte{0x04, 0xff, 0xff, 0xff, 0xff, 0x00})
	f.Add([]byte{0x20, 0x01, 0x00, 0x00, 0x00})
	f.Fuzz(func(t *testing.T, data []byte) {
		cur, err := sbson.NewCursorFromBytes(data)
		if err != nil {
			return
		}
		walk(cur, 0)
	})
}
