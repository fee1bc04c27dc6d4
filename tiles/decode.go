package tiles

import (
	"bytes"
	"context"
	"fmt"
	"image"

	// Tile formats produced by common panorama tile generators.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Fetcher retrieves the encoded bytes of a tile or image. Fetch is called
// from its own goroutine and must honor ctx cancellation where the
// transport allows it. Missing data is reported with an error wrapping
// ErrNotFound.
type Fetcher interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, path string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, path string) ([]byte, error) {
	return f(ctx, path)
}

// Decode decodes an encoded image. Failures wrap ErrMalformed.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrMalformed)
	}
	return img, nil
}
