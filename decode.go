package sbson

// Unmarshal decodes a document into the generic value tree Marshal
// accepts: map[string]any, []any, and the scalar domain. It drives only
// the public cursor API, so every descent is bounds-checked the same way
// ad hoc traversal is.
//
// Strings and binary payloads alias the input buffer.
func Unmarshal(data []byte) (any, error) {
	c, err := NewCursorFromBytes(data)
	if err != nil {
		return nil, err
	}
	return Decode(c)
}

// Decode materializes the value subtree under c.
func Decode(c Cursor) (any, error) {
	switch c.ElementType() {
	case TypeNone:
		return nil, nil
	case TypeTrue, TypeFalse:
		return c.AsBool()
	case TypeInt32:
		return c.AsInt32()
	case TypeUInt32:
		return c.AsUint32()
	case TypeInt64:
		return c.AsInt64()
	case TypeUInt64:
		return c.AsUint64()
	case TypeDouble:
		return c.AsDouble()
	case TypeString:
		return c.AsString()
	case TypeBinary:
		return c.AsBytes()
	case TypeArray:
		it, err := c.IterArray()
		if err != nil {
			return nil, err
		}
		items := make([]any, 0, c.ChildrenCount())
		for it.Next() {
			if err := it.Err(); err != nil {
				return nil, err
			}
			item, err := Decode(it.Value())
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	case TypeMap, TypeMapCHD:
		it, err := c.IterMap()
		if err != nil {
			return nil, err
		}
		m := make(map[string]any, c.ChildrenCount())
		for it.Next() {
			if err := it.Err(); err != nil {
				return nil, err
			}
			value, err := Decode(it.Value())
			if err != nil {
				return nil, err
			}
			m[it.Key()] = value
		}
		return m, nil
	}
	return nil, &InvalidElementTypeError{Tag: byte(c.ElementType())}
}
