// Package tiles streams multiresolution cube panoramas: it owns the tile
// pyramid of a session, decides which tiles the current view needs,
// fetches them asynchronously, caches and evicts their textures, and hands
// the renderer the best available tiles for every visible region.
package tiles

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/gmlewis/panoview/projection"
)

// PreviewLevel addresses the optional low resolution preview faces that
// sit beneath level 0.
const PreviewLevel = -1

// Descriptor describes a tile pyramid produced by a tile generator. Level
// 0 is the coarsest level; each level doubles the face resolution of the
// one below it.
type Descriptor struct {
	// TileResolution is the edge length of a full tile in pixels.
	TileResolution int `json:"tileResolution"`
	// CubeResolution is the face edge length of the finest level.
	CubeResolution int `json:"cubeResolution"`
	// Levels is the number of levels in the pyramid.
	Levels int `json:"levels"`
	// Path is the tile path template. It may contain {level}, {face},
	// {x} and {y}.
	Path string `json:"path"`
	// Extension, when set, is appended to every tile path.
	Extension string `json:"extension,omitempty"`
	// LevelBase is added to the level index substituted for {level}.
	LevelBase int `json:"levelBase,omitempty"`
	// FallbackPath is the path template of the preview faces. It may
	// contain {face}.
	FallbackPath string `json:"fallbackPath,omitempty"`
}

// ParseDescriptor decodes and validates a JSON descriptor.
func ParseDescriptor(r io.Reader) (*Descriptor, error) {
	var d Descriptor
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode tile descriptor: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate checks the descriptor is usable.
func (d *Descriptor) Validate() error {
	switch {
	case d.TileResolution <= 0:
		return fmt.Errorf("tile descriptor: tileResolution %v must be positive", d.TileResolution)
	case d.CubeResolution <= 0:
		return fmt.Errorf("tile descriptor: cubeResolution %v must be positive", d.CubeResolution)
	case d.Levels <= 0:
		return fmt.Errorf("tile descriptor: levels %v must be positive", d.Levels)
	case d.Levels > 30:
		return fmt.Errorf("tile descriptor: %v levels is too many", d.Levels)
	case !strings.Contains(d.Path, "{x}") || !strings.Contains(d.Path, "{y}"):
		return fmt.Errorf("tile descriptor: path %q needs {x} and {y}", d.Path)
	case !strings.Contains(d.Path, "{face}"):
		return fmt.Errorf("tile descriptor: path %q needs {face}", d.Path)
	case d.Levels > 1 && !strings.Contains(d.Path, "{level}"):
		return fmt.Errorf("tile descriptor: path %q needs {level} for %v levels", d.Path, d.Levels)
	}
	return nil
}

// MaxLevel is the finest level.
func (d *Descriptor) MaxLevel() int {
	return d.Levels - 1
}

// FaceSize returns the face edge length in pixels at a level.
func (d *Descriptor) FaceSize(level int) int {
	if level < 0 {
		level = 0
	}
	if level > d.MaxLevel() {
		level = d.MaxLevel()
	}
	scale := math.Ldexp(1, d.MaxLevel()-level)
	size := int(math.Ceil(float64(d.CubeResolution) / scale))
	if size < 1 {
		size = 1
	}
	return size
}

// Grid returns the number of tiles along each face edge at a level.
func (d *Descriptor) Grid(level int) int {
	if level == PreviewLevel {
		return 1
	}
	return (d.FaceSize(level) + d.TileResolution - 1) / d.TileResolution
}

// Tiles returns the number of tiles per face at a level.
func (d *Descriptor) Tiles(level int) int {
	g := d.Grid(level)
	return g * g
}

// Valid reports whether id addresses a tile of the pyramid.
func (d *Descriptor) Valid(id ID) bool {
	if id.Face < 0 || id.Face >= projection.NumFaces {
		return false
	}
	if id.Level == PreviewLevel {
		return d.FallbackPath != "" && id.X == 0 && id.Y == 0
	}
	g := d.Grid(id.Level)
	return id.Level >= 0 && id.Level <= d.MaxLevel() && id.X >= 0 && id.Y >= 0 && id.X < g && id.Y < g
}

// TilePath substitutes id into the path template.
func (d *Descriptor) TilePath(id ID) string {
	face := projection.FaceNames[id.Face]
	if id.Level == PreviewLevel {
		return d.withExtension(strings.ReplaceAll(d.FallbackPath, "{face}", face))
	}
	r := strings.NewReplacer(
		"{level}", strconv.Itoa(id.Level+d.LevelBase),
		"{face}", face,
		"{x}", strconv.Itoa(id.X),
		"{y}", strconv.Itoa(id.Y),
	)
	return d.withExtension(r.Replace(d.Path))
}

func (d *Descriptor) withExtension(p string) string {
	if d.Extension == "" {
		return p
	}
	return p + "." + strings.TrimPrefix(d.Extension, ".")
}

// TileRect returns the part of its face a tile covers in image
// coordinates (u right, v down, both in [0, 1]). Tiles on the right and
// bottom edges may be narrower than TileResolution.
func (d *Descriptor) TileRect(id ID) Rect {
	if id.Level == PreviewLevel {
		return Rect{0, 0, 1, 1}
	}
	fs := float64(d.FaceSize(id.Level))
	ts := float64(d.TileResolution)
	return Rect{
		U0: float64(id.X) * ts / fs,
		V0: float64(id.Y) * ts / fs,
		U1: math.Min(float64(id.X+1)*ts, fs) / fs,
		V1: math.Min(float64(id.Y+1)*ts, fs) / fs,
	}
}

// SelectLevel returns the coarsest level whose face pixel density at the
// view center reaches the screen's pixel density, or the finest level if
// none does. hfov is in radians.
func (d *Descriptor) SelectLevel(hfov float64, viewportWidth int) int {
	if hfov <= 0 || viewportWidth <= 0 {
		return 0
	}
	// Pixels per radian at the center of the screen and of a face.
	screen := float64(viewportWidth) / 2 / math.Tan(hfov/2)
	for level := 0; level < d.Levels; level++ {
		if float64(d.FaceSize(level))/2 >= screen {
			return level
		}
	}
	return d.MaxLevel()
}

// Rect is a rectangle in face image coordinates.
type Rect struct {
	U0, V0, U1, V1 float64
}

// Contains reports whether (u, v) lies inside r, edges included.
func (r Rect) Contains(u, v float64) bool {
	return u >= r.U0 && u <= r.U1 && v >= r.V0 && v <= r.V1
}
