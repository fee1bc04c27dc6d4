// Package tilepack is a single file archive for tile pyramids.
//
// Every entry is compressed on its own with lz4 and the index sits at the
// front of the file, so an archive can be memory mapped and any tile read
// and decompressed in place without scanning. An Archive is safe for
// concurrent reads.
//
// Layout:
//
//	magic "PVTP" | header size (8 bytes, little endian) | gob Header | entry data
//
// Entry offsets are relative to the start of the entry data.
package tilepack

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
)

// DescriptorName is the entry holding the pyramid's JSON descriptor.
const DescriptorName = "config.json"

// Version is the format version written by Builder.
const Version = 1

const (
	magic          = "PVTP"
	magicLength    = len(magic)
	sizeLength     = 8
	maxHeaderBytes = 64 << 20
)

var (
	// ErrFileFormat is returned for data that is not a tile pack.
	ErrFileFormat = errors.New("corrupted or not a tile pack")

	// ErrNotExist is returned for names the archive does not hold.
	ErrNotExist = fmt.Errorf("tilepack: %w", fs.ErrNotExist)
)

// Entry locates one file in the archive.
type Entry struct {
	Name           string
	Offset         int64
	Size           int64
	CompressedSize int64
}

// Header is the archive index.
type Header struct {
	Author      string
	DateCreated int64
	Version     int64
	Index       []Entry
}

func encodeHeader(h *Header) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(h); err != nil {
		return nil, fmt.Errorf("encode tile pack header: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeHeader(b []byte) (*Header, error) {
	var h Header
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&h); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrFileFormat, err)
	}
	return &h, nil
}

func putSize(n int64) []byte {
	b := make([]byte, sizeLength)
	binary.LittleEndian.PutUint64(b, uint64(n))
	return b
}
