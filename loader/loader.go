// Package loader turns panorama references into render sources.
//
// A reference is a file path or an http(s) URL naming one of:
//
//   - an image, loaded as a full equirectangular panorama;
//   - a tile pack (.pvtp) holding a multires pyramid and its descriptor;
//   - a JSON scene description (.json) of any source type.
package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gmlewis/panoview/fetch"
	"github.com/gmlewis/panoview/projection"
	"github.com/gmlewis/panoview/render"
	"github.com/gmlewis/panoview/tilepack"
	"github.com/gmlewis/panoview/tiles"
	"github.com/gmlewis/panoview/view"
)

// Source types of a Description.
const (
	TypeEquirectangular = "equirectangular"
	TypeCubeMap         = "cubemap"
	TypeMultires        = "multires"
	TypeFlat            = "flat"
)

// PackExt is the file extension of tile packs.
const PackExt = ".pvtp"

// Description is a scene description. Field names follow the scene
// configuration of common web panorama viewers.
type Description struct {
	Type string `json:"type"`
	// Panorama is the image of equirectangular and flat sources.
	Panorama string `json:"panorama,omitempty"`
	// CubeMap lists the cube faces in the order front, right, back,
	// left, up, down.
	CubeMap  []string          `json:"cubeMap,omitempty"`
	MultiRes *tiles.Descriptor `json:"multiRes,omitempty"`
	// BasePath is the root of relative references. It defaults to the
	// location of the description itself.
	BasePath string `json:"basePath,omitempty"`

	HAOV    float64 `json:"haov,omitempty"`
	VAOV    float64 `json:"vaov,omitempty"`
	VOffset float64 `json:"vOffset,omitempty"`

	Yaw   float64 `json:"yaw,omitempty"`
	Pitch float64 `json:"pitch,omitempty"`
	Roll  float64 `json:"roll,omitempty"`
	HFOV  float64 `json:"hfov,omitempty"`
}

// cubeMapFaces maps CubeMap positions to projection faces.
var cubeMapFaces = [projection.NumFaces]int{
	projection.FaceFront,
	projection.FaceRight,
	projection.FaceBack,
	projection.FaceLeft,
	projection.FaceUp,
	projection.FaceDown,
}

// Scene is a loaded source with its initial view.
type Scene struct {
	Source  render.Source
	Initial view.State

	closers []io.Closer
}

// Close releases files the scene's fetcher reads from. The source must
// not be rendered afterwards.
func (s *Scene) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Loader resolves references.
type Loader struct {
	// HTTP fetches URL references. NewHTTP is used when nil.
	HTTP   *fetch.HTTP
	Logger *log.Entry
}

// New returns a Loader.
func New(logger *log.Entry) *Loader {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Loader{HTTP: fetch.NewHTTP(""), Logger: logger}
}

func isURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// ext returns the lower case extension of ref, ignoring any URL query.
func ext(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 && isURL(ref) {
		ref = ref[:i]
	}
	return strings.ToLower(path.Ext(ref))
}

// join resolves ref against base. Under a URL base every ref, leading
// slash or not, stays below base.
func join(base, ref string) string {
	if base == "" || isURL(ref) {
		return ref
	}
	if isURL(base) {
		return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(ref, "/")
	}
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(base, filepath.FromSlash(ref))
}

// dir returns the location containing ref.
func dir(ref string) string {
	if isURL(ref) {
		if i := strings.LastIndex(ref, "/"); i > len("https://") {
			return ref[:i]
		}
		return ref
	}
	return filepath.Dir(ref)
}

// read returns the bytes of a reference.
func (l *Loader) read(ctx context.Context, ref string) ([]byte, error) {
	if isURL(ref) {
		h := l.HTTP
		if h == nil {
			h = fetch.NewHTTP("")
		}
		return h.Fetch(ctx, ref)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(ref)
}

// fetcherFor returns a tile fetcher rooted at base.
func (l *Loader) fetcherFor(base string) tiles.Fetcher {
	if isURL(base) {
		h := fetch.NewHTTP("")
		if l.HTTP != nil {
			copied := *l.HTTP
			h = &copied
		}
		h.BaseURL = base
		h.Logger = l.Logger
		return h
	}
	return fetch.Dir(base)
}

// Load resolves ref into a scene.
func (l *Loader) Load(ctx context.Context, ref string) (*Scene, error) {
	logger := l.Logger.WithField("ref", ref)
	switch ext(ref) {
	case ".json":
		data, err := l.read(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("load %v: %w", ref, err)
		}
		var d Description
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("load %v: %w", ref, err)
		}
		if d.BasePath == "" {
			d.BasePath = dir(ref)
		} else {
			d.BasePath = join(dir(ref), d.BasePath)
		}
		logger.WithField("type", d.Type).Debug("scene description")
		return l.FromDescription(ctx, d)
	case PackExt:
		if isURL(ref) {
			return nil, fmt.Errorf("load %v: tile packs must be local files", ref)
		}
		return l.loadPack(ref)
	}
	return l.FromDescription(ctx, Description{Type: TypeEquirectangular, Panorama: ref})
}

func (l *Loader) loadPack(file string) (*Scene, error) {
	ar, err := tilepack.OpenFile(file)
	if err != nil {
		return nil, err
	}
	raw, err := ar.ReadAll(tilepack.DescriptorName)
	if err != nil {
		ar.Close()
		return nil, fmt.Errorf("load %v: %w", file, err)
	}
	var d Description
	if err := json.Unmarshal(raw, &d); err != nil {
		ar.Close()
		return nil, fmt.Errorf("load %v: %v: %w", file, tilepack.DescriptorName, err)
	}
	if d.MultiRes == nil {
		ar.Close()
		return nil, fmt.Errorf("load %v: %v has no multiRes section", file, tilepack.DescriptorName)
	}
	if err := d.MultiRes.Validate(); err != nil {
		ar.Close()
		return nil, fmt.Errorf("load %v: %w", file, err)
	}
	l.Logger.WithFields(log.Fields{"pack": file, "entries": len(ar.Names())}).Info("opened tile pack")
	return &Scene{
		Source:  render.Multires{Pyramid: d.MultiRes, Fetcher: fetch.Pack{Archive: ar}},
		Initial: d.initial(),
		closers: []io.Closer{ar},
	}, nil
}

func (d *Description) initial() view.State {
	return view.State{Yaw: d.Yaw, Pitch: d.Pitch, Roll: d.Roll, HFOV: d.HFOV}
}

// FromDescription builds the scene d describes. Images are fetched and
// decoded before it returns; multires tiles are fetched by the renderer.
func (l *Loader) FromDescription(ctx context.Context, d Description) (*Scene, error) {
	scene := &Scene{Initial: d.initial()}
	switch strings.ToLower(d.Type) {
	case "", TypeEquirectangular:
		img, err := l.image(ctx, join(d.BasePath, d.Panorama))
		if err != nil {
			return nil, err
		}
		scene.Source = render.Equirectangular{Image: img, HAOV: d.HAOV, VAOV: d.VAOV, VOffset: d.VOffset}
	case TypeFlat:
		img, err := l.image(ctx, join(d.BasePath, d.Panorama))
		if err != nil {
			return nil, err
		}
		scene.Source = render.Flat{Image: img, HAOV: d.HAOV}
	case TypeCubeMap:
		src, err := l.cube(ctx, d)
		if err != nil {
			return nil, err
		}
		scene.Source = src
	case TypeMultires:
		if d.MultiRes == nil {
			return nil, errors.New("multires scene has no multiRes section")
		}
		if err := d.MultiRes.Validate(); err != nil {
			return nil, err
		}
		scene.Source = render.Multires{Pyramid: d.MultiRes, Fetcher: l.fetcherFor(d.BasePath)}
	default:
		return nil, fmt.Errorf("unknown scene type %q", d.Type)
	}
	return scene, nil
}

func (l *Loader) image(ctx context.Context, ref string) (img image.Image, err error) {
	if ref == "" {
		return nil, errors.New("scene has no panorama")
	}
	data, err := l.read(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("load %v: %w", ref, err)
	}
	img, err = tiles.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("load %v: %w", ref, err)
	}
	l.Logger.WithFields(log.Fields{"ref": ref, "size": img.Bounds().Size()}).Debug("decoded image")
	return img, nil
}

// cube loads the six faces concurrently.
func (l *Loader) cube(ctx context.Context, d Description) (render.Cube, error) {
	var src render.Cube
	if len(d.CubeMap) != projection.NumFaces {
		return src, fmt.Errorf("cubeMap has %v faces, want %v", len(d.CubeMap), projection.NumFaces)
	}
	g, ctx := errgroup.WithContext(ctx)
	for i, ref := range d.CubeMap {
		face, ref := cubeMapFaces[i], join(d.BasePath, ref)
		g.Go(func() error {
			img, err := l.image(ctx, ref)
			if err != nil {
				return err
			}
			src.Faces[face] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return render.Cube{}, err
	}
	return src, nil
}
