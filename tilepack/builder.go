package tilepack

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/pierrec/lz4"
)

// Builder collects entries and writes them out as one archive. Archives
// cannot be appended to; build a new one instead.
type Builder struct {
	header Header

	mu      sync.Mutex
	entries map[string]builderEntry
}

type builderEntry struct {
	size int64
	data []byte
}

// NewBuilder returns a Builder. The Index of header is ignored.
func NewBuilder(header Header) *Builder {
	header.Index = nil
	if header.Version == 0 {
		header.Version = Version
	}
	return &Builder{header: header, entries: map[string]builderEntry{}}
}

// Add compresses data and stores it under name, replacing any earlier
// entry of that name. It is safe to call from several goroutines.
func (b *Builder) Add(name string, data []byte) error {
	if name == "" {
		return fmt.Errorf("tilepack: empty entry name")
	}
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("compress %v: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("compress %v: %w", name, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[name] = builderEntry{size: int64(len(data)), data: buf.Bytes()}
	return nil
}

// Len returns the number of entries added.
func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// WriteTo writes the archive. Entries are stored in name order.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, len(b.entries))
	for name := range b.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	header := b.header
	header.Index = make([]Entry, 0, len(names))
	var offset int64
	for _, name := range names {
		e := b.entries[name]
		header.Index = append(header.Index, Entry{
			Name:           name,
			Offset:         offset,
			Size:           e.size,
			CompressedSize: int64(len(e.data)),
		})
		offset += int64(len(e.data))
	}

	raw, err := encodeHeader(&header)
	if err != nil {
		return 0, err
	}

	var written int64
	write := func(p []byte) error {
		n, err := w.Write(p)
		written += int64(n)
		return err
	}
	if err := write([]byte(magic)); err != nil {
		return written, err
	}
	if err := write(putSize(int64(len(raw)))); err != nil {
		return written, err
	}
	if err := write(raw); err != nil {
		return written, err
	}
	for _, name := range names {
		if err := write(b.entries[name].data); err != nil {
			return written, err
		}
	}
	return written, nil
}
