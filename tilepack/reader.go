package tilepack

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/pierrec/lz4"
	"golang.org/x/exp/mmap"
)

// Archive reads a tile pack.
type Archive struct {
	r      io.ReaderAt
	closer io.Closer
	header *Header
	byName map[string]Entry
	base   int64
}

// Open reads the index of the tile pack in r. It fails with ErrFileFormat
// when r does not hold one.
func Open(r io.ReaderAt) (*Archive, error) {
	prefix := make([]byte, magicLength+sizeLength)
	if _, err := r.ReadAt(prefix, 0); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrFileFormat
		}
		return nil, err
	}
	if string(prefix[:magicLength]) != magic {
		return nil, ErrFileFormat
	}
	size := int64(binary.LittleEndian.Uint64(prefix[magicLength:]))
	if size <= 0 || size > maxHeaderBytes {
		return nil, fmt.Errorf("%w: header size %v", ErrFileFormat, size)
	}

	raw := make([]byte, size)
	if n, err := r.ReadAt(raw, int64(len(prefix))); int64(n) < size {
		if err == nil || err == io.EOF {
			return nil, fmt.Errorf("%w: truncated header", ErrFileFormat)
		}
		return nil, err
	}
	header, err := decodeHeader(raw)
	if err != nil {
		return nil, err
	}

	a := &Archive{
		r:      r,
		header: header,
		byName: make(map[string]Entry, len(header.Index)),
		base:   int64(len(prefix)) + size,
	}
	for _, e := range header.Index {
		if e.Offset < 0 || e.CompressedSize < 0 || e.Size < 0 {
			return nil, fmt.Errorf("%w: entry %q", ErrFileFormat, e.Name)
		}
		a.byName[e.Name] = e
	}
	return a, nil
}

// OpenFile memory maps the tile pack at path.
func OpenFile(path string) (*Archive, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	a, err := Open(m)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("open %v: %w", path, err)
	}
	a.closer = m
	return a, nil
}

// Close releases the mapping of an archive opened with OpenFile.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	c := a.closer
	a.closer = nil
	return c.Close()
}

// Header returns the archive index.
func (a *Archive) Header() Header {
	return *a.header
}

// Names returns the entry names in sorted order.
func (a *Archive) Names() []string {
	names := make([]string, 0, len(a.byName))
	for name := range a.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether the archive holds name.
func (a *Archive) Has(name string) bool {
	_, ok := a.byName[name]
	return ok
}

// Stat returns the index entry of name.
func (a *Archive) Stat(name string) (Entry, error) {
	e, ok := a.byName[name]
	if !ok {
		return Entry{}, fmt.Errorf("%v: %w", name, ErrNotExist)
	}
	return e, nil
}

// Open returns a reader of the decompressed contents of name.
func (a *Archive) Open(name string) (io.Reader, error) {
	e, err := a.Stat(name)
	if err != nil {
		return nil, err
	}
	section := io.NewSectionReader(a.r, a.base+e.Offset, e.CompressedSize)
	return lz4.NewReader(section), nil
}

// ReadAll returns the decompressed contents of name.
func (a *Archive) ReadAll(name string) ([]byte, error) {
	e, err := a.Stat(name)
	if err != nil {
		return nil, err
	}
	r, err := a.Open(name)
	if err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(make([]byte, 0, e.Size))
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fmt.Errorf("%w: entry %q: %v", ErrFileFormat, name, err)
	}
	if int64(buf.Len()) != e.Size {
		return nil, fmt.Errorf("%w: entry %q is %v bytes, index says %v", ErrFileFormat, name, buf.Len(), e.Size)
	}
	return buf.Bytes(), nil
}

// Visit calls fn with every entry in name order until fn returns an
// error.
func (a *Archive) Visit(fn func(name string, data []byte) error) error {
	for _, name := range a.Names() {
		data, err := a.ReadAll(name)
		if err != nil {
			return err
		}
		if err := fn(name, data); err != nil {
			return err
		}
	}
	return nil
}
