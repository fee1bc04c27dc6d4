// Package fetch provides tiles.Fetcher implementations for tiles served
// over HTTP, stored in a directory tree or packed in a tile pack.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gmlewis/panoview/tilepack"
	"github.com/gmlewis/panoview/tiles"
)

// DefaultMaxBytes bounds the size of one fetched tile.
const DefaultMaxBytes = 32 << 20

// HTTP fetches tile paths relative to BaseURL.
type HTTP struct {
	BaseURL string
	Client  *http.Client
	// Header is added to every request.
	Header   http.Header
	MaxBytes int64
	Logger   *log.Entry
}

var _ tiles.Fetcher = (*HTTP)(nil)

// NewHTTP returns an HTTP fetcher with a client that times out after 30
// seconds.
func NewHTTP(baseURL string) *HTTP {
	return &HTTP{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// URL returns the absolute URL of a tile path. Paths that already carry
// a scheme are used as is.
func (h *HTTP) URL(p string) string {
	if strings.Contains(p, "://") || h.BaseURL == "" {
		return p
	}
	return strings.TrimSuffix(h.BaseURL, "/") + "/" + strings.TrimPrefix(p, "/")
}

// Fetch implements tiles.Fetcher. Responses 404 and 410 fail with
// tiles.ErrNotFound and are not retried.
func (h *HTTP) Fetch(ctx context.Context, p string) ([]byte, error) {
	u := h.URL(p)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range h.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	if h.Logger != nil {
		h.Logger.WithField("url", u).Debug("GET")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("GET %v: %v: %w", u, resp.Status, tiles.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("GET %v: %v", u, resp.Status)
	}

	limit := h.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("GET %v: %w", u, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("GET %v: body exceeds %v bytes: %w", u, limit, tiles.ErrMalformed)
	}
	return data, nil
}

// FS fetches tile paths from a file system.
type FS struct {
	FS fs.FS
}

var _ tiles.Fetcher = FS{}

// Dir returns a fetcher reading tiles below root.
func Dir(root string) FS {
	return FS{FS: os.DirFS(root)}
}

// Fetch implements tiles.Fetcher. Missing files fail with
// tiles.ErrNotFound.
func (f FS) Fetch(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	data, err := fs.ReadFile(f.FS, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%v: %w", name, tiles.ErrNotFound)
	}
	return data, err
}

// Pack fetches tile paths from a tile pack.
type Pack struct {
	Archive *tilepack.Archive
}

var _ tiles.Fetcher = Pack{}

// Fetch implements tiles.Fetcher. Entries the pack does not hold fail
// with tiles.ErrNotFound; corrupt entries with tiles.ErrMalformed.
func (f Pack) Fetch(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	data, err := f.Archive.ReadAll(name)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%v: %w", name, tiles.ErrNotFound)
	case errors.Is(err, tilepack.ErrFileFormat):
		return nil, fmt.Errorf("%v: %v: %w", name, err, tiles.ErrMalformed)
	}
	return data, err
}

// cleanPath turns a tile path into an fs.FS name.
func cleanPath(p string) (string, error) {
	name := path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))[1:]
	if name == "" || !fs.ValidPath(name) {
		return "", fmt.Errorf("invalid tile path %q: %w", p, tiles.ErrNotFound)
	}
	return name, nil
}
