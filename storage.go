package sbson

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/klauspost/compress/gzip"
)

// Storage grants read-only access to a contiguous byte buffer holding one
// SBSON document. A cursor's validity is bounded by its storage handle's
// lifetime.
//
// Implementations must return the same buffer on every call, and the
// buffer must not be mutated while cursors hold it. Storage handles are
// safe to share across goroutines; cursors never write through them.
type Storage interface {
	Bytes() []byte
}

// Bytes is the plain in-memory storage handle.
type Bytes []byte

// Bytes implements Storage.
func (b Bytes) Bytes() []byte { return b }

// MappedFile is a read-only memory map of a document file. Descending
// into a mapped multi-gigabyte document touches only the pages on the
// accessed path.
type MappedFile struct {
	f    *os.File
	data mmap.MMap
}

// OpenMapped maps the document file at path.
func OpenMapped(path string) (*MappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sbson: mapping %s: %w", path, err)
	}
	return &MappedFile{f: f, data: data}, nil
}

// Bytes implements Storage. The mapping must outlive every cursor that
// reads through it.
func (m *MappedFile) Bytes() []byte { return m.data }

// Close unmaps the file. Cursors over this storage become invalid.
func (m *MappedFile) Close() error {
	err := m.data.Unmap()
	if cerr := m.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Load reads a document file into memory. Files carrying the gzip magic
// are decompressed transparently, so documents can be shipped as
// .sbson.gz.
func Load(path string) (Bytes, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) >= 2 && raw[0] == 0x1f && raw[1] == 0x8b {
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("sbson: reading %s: %w", path, err)
		}
		defer zr.Close()
		raw, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("sbson: reading %s: %w", path, err)
		}
	}
	return Bytes(raw), nil
}
