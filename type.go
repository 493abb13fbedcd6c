package sbson

import "fmt"

// ElementType is the single-byte tag that starts every SBSON node.
type ElementType byte

// Wire tags.
const (
	TypeDouble ElementType = 0x01 // 8 bytes, little-endian IEEE-754 binary64
	TypeString ElementType = 0x02 // UTF-8 bytes followed by one NUL
	TypeMap    ElementType = 0x03 // Eytzinger-ordered map
	TypeArray  ElementType = 0x04 // count, offset table, payloads
	TypeBinary ElementType = 0x05 // raw bytes, length implied by framing
	TypeFalse  ElementType = 0x08 // no payload
	TypeTrue   ElementType = 0x09 // no payload
	TypeNone   ElementType = 0x0A // no payload
	TypeInt32  ElementType = 0x10 // 4 bytes little-endian two's complement
	TypeUInt32 ElementType = 0x11 // 4 bytes little-endian
	TypeInt64  ElementType = 0x12 // 8 bytes little-endian two's complement
	TypeUInt64 ElementType = 0x13 // 8 bytes little-endian
	TypeMapCHD ElementType = 0x20 // perfect-hash map
)

// IsContainer reports whether nodes of this type carry child descriptors.
func (t ElementType) IsContainer() bool {
	return t == TypeMap || t == TypeArray || t == TypeMapCHD
}

// IsMap reports whether nodes of this type hold keyed children.
func (t ElementType) IsMap() bool {
	return t == TypeMap || t == TypeMapCHD
}

func (t ElementType) valid() bool {
	switch t {
	case TypeDouble, TypeString, TypeMap, TypeArray, TypeBinary,
		TypeFalse, TypeTrue, TypeNone,
		TypeInt32, TypeUInt32, TypeInt64, TypeUInt64, TypeMapCHD:
		return true
	}
	return false
}

func (t ElementType) String() string {
	switch t {
	case TypeDouble:
		return "Double"
	case TypeString:
		return "String"
	case TypeMap:
		return "Map"
	case TypeArray:
		return "Array"
	case TypeBinary:
		return "Binary"
	case TypeFalse:
		return "False"
	case TypeTrue:
		return "True"
	case TypeNone:
		return "None"
	case TypeInt32:
		return "Int32"
	case TypeUInt32:
		return "UInt32"
	case TypeInt64:
		return "Int64"
	case TypeUInt64:
		return "UInt64"
	case TypeMapCHD:
		return "MapCHD"
	}
	return fmt.Sprintf("ElementType(0x%02x)", byte(t))
}
