// Package sbson reads and writes SBSON, a compact binary document format
// for zero-parse random access into large, read-only tree documents.
//
// A document is a single type-tagged node. Container nodes (maps and
// arrays) carry fixed-width descriptor tables of node-relative child offsets,
// so a consumer can descend into an arbitrary path of a multi-megabyte
// document while touching only the bytes on the accessed path. Maps come
// in two layouts: an Eytzinger-ordered layout searched in O(log n), and a
// compress-hash-displace perfect-hash layout probed in O(1).
//
// Reading starts with a Cursor over a Storage handle:
//
//	cur, err := sbson.NewCursorFromBytes(doc)
//	if err != nil { ... }
//	v, err := cur.Goto(sbson.Key("BLARG"), sbson.Index(0))
//	if err != nil { ... }
//	n, err := v.AsInt64()
//
// Cursors never copy payload bytes and never mutate their storage; any
// number of goroutines may hold cursors into the same document.
//
// Writing goes through Marshal, which encodes a generic value tree
// (map[string]any, []any, scalars, []byte) into a self-contained
// document.
package sbson
