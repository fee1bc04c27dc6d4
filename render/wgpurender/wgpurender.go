// Package wgpurender is an offscreen WebGPU backend. Frames are drawn
// into an RGBA8 target that Snapshot copies back to the CPU.
package wgpurender

import (
	"errors"
	"fmt"
	"image"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
	log "github.com/sirupsen/logrus"
	"golang.org/x/image/draw"

	"github.com/gmlewis/panoview/projection"
	"github.com/gmlewis/panoview/render"
)

const (
	// uniformSlot is the dynamic offset alignment WebGPU guarantees.
	uniformSlot = 256
	// DefaultMaxDraws is the number of draws one frame can record.
	DefaultMaxDraws = 1024

	targetFormat = wgpu.TextureFormatRGBA8Unorm
)

// Options configures a Backend.
type Options struct {
	// MaxDraws bounds the draws of one frame. Draws beyond it are
	// dropped with a warning.
	MaxDraws int
	Logger   *log.Entry
}

// Backend is a render.Backend on WebGPU.
type Backend struct {
	opts Options
	log  *log.Entry

	width, height int
	bytesPerRow   uint32

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	caps     projection.Caps

	uniformLayout *wgpu.BindGroupLayout
	singleLayout  *wgpu.BindGroupLayout
	cubeLayout    *wgpu.BindGroupLayout
	uniformBuffer *wgpu.Buffer
	uniformGroup  *wgpu.BindGroup
	samplers      map[projection.Wrap]*wgpu.Sampler

	targetTexture *wgpu.Texture
	targetView    *wgpu.TextureView
	readBuffer    *wgpu.Buffer

	programs []*program
	meshes   []*mesh
	textures map[*texture]struct{}
	cubes    map[[projection.NumFaces]*texture]*wgpu.BindGroup

	encoder *wgpu.CommandEncoder
	pass    *wgpu.RenderPassEncoder
	draws   int
	dropped int
	scratch [projection.UniformFloats]float32
}

var (
	_ render.Backend       = (*Backend)(nil)
	_ render.TextureBinder = (*Backend)(nil)
)

// New returns an uninitialised backend.
func New(opts Options) *Backend {
	if opts.MaxDraws <= 0 {
		opts.MaxDraws = DefaultMaxDraws
	}
	l := opts.Logger
	if l == nil {
		l = log.NewEntry(log.StandardLogger())
	}
	return &Backend{
		opts:     opts,
		log:      l.WithField("backend", "webgpu"),
		samplers: map[projection.Wrap]*wgpu.Sampler{},
		textures: map[*texture]struct{}{},
		cubes:    map[[projection.NumFaces]*texture]*wgpu.BindGroup{},
	}
}

// Factory returns a render.Factory creating backends with opts.
func Factory(opts Options) render.Factory {
	return func() render.Backend { return New(opts) }
}

type program struct {
	kind     projection.Kind
	pipeline *wgpu.RenderPipeline
}

func (p *program) Kind() projection.Kind { return p.kind }

type mesh struct {
	vertices *wgpu.Buffer
	indices  *wgpu.Buffer
	count    uint32
}

func (m *mesh) IndexCount() int { return int(m.count) }

type texture struct {
	tex   *wgpu.Texture
	view  *wgpu.TextureView
	group *wgpu.BindGroup
	size  image.Point
}

func (t *texture) Size() image.Point { return t.size }

func (b *Backend) Init(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("viewport %vx%v", width, height)
	}
	b.width, b.height = width, height

	b.instance = wgpu.CreateInstance(nil)
	if b.instance == nil {
		return errors.New("failed to create wgpu instance")
	}
	var err error
	b.adapter, err = b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{})
	if err != nil {
		return fmt.Errorf("failed to request wgpu adapter: %w", err)
	}
	b.device, err = b.adapter.RequestDevice(nil)
	if err != nil {
		return fmt.Errorf("failed to request wgpu device: %w", err)
	}
	b.queue = b.device.GetQueue()
	b.caps = projection.Caps{MaxTextureSize: int(b.device.GetLimits().Limits.MaxTextureDimension2D)}

	if err := b.createLayouts(); err != nil {
		return err
	}
	if err := b.createUniforms(); err != nil {
		return err
	}
	for _, w := range []projection.Wrap{projection.ClampToEdge, projection.Repeat} {
		mode := wgpu.AddressModeClampToEdge
		if w == projection.Repeat {
			mode = wgpu.AddressModeRepeat
		}
		s, err := b.device.CreateSampler(&wgpu.SamplerDescriptor{
			AddressModeU:  mode,
			AddressModeV:  wgpu.AddressModeClampToEdge,
			AddressModeW:  wgpu.AddressModeClampToEdge,
			MagFilter:     wgpu.FilterModeLinear,
			MinFilter:     wgpu.FilterModeLinear,
			MipmapFilter:  wgpu.MipmapFilterModeNearest,
			LodMaxClamp:   32,
			MaxAnisotropy: 1,
		})
		if err != nil {
			return fmt.Errorf("failed to create sampler: %w", err)
		}
		b.samplers[w] = s
	}
	if err := b.createTarget(); err != nil {
		return err
	}
	b.log.WithField("maxTextureSize", b.caps.MaxTextureSize).Info("webgpu context created")
	return nil
}

func (b *Backend) createLayouts() error {
	var err error
	b.uniformLayout, err = b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Uniforms",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
				Buffer: wgpu.BufferBindingLayout{
					Type:             wgpu.BufferBindingTypeUniform,
					HasDynamicOffset: true,
					MinBindingSize:   projection.UniformFloats * 4,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create bind group layout: %w", err)
	}
	if b.singleLayout, err = b.textureLayout(1); err != nil {
		return err
	}
	b.cubeLayout, err = b.textureLayout(projection.NumFaces)
	return err
}

// textureLayout is a filtering sampler at binding 0 and n textures from
// binding 1.
func (b *Backend) textureLayout(n int) (*wgpu.BindGroupLayout, error) {
	entries := []wgpu.BindGroupLayoutEntry{{
		Binding:    0,
		Visibility: wgpu.ShaderStageFragment,
		Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering},
	}}
	for i := 1; i <= n; i++ {
		entries = append(entries, wgpu.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: wgpu.ShaderStageFragment,
			Texture: wgpu.TextureBindingLayout{
				SampleType:    wgpu.TextureSampleTypeFloat,
				ViewDimension: wgpu.TextureViewDimension2D,
			},
		})
	}
	l, err := b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("failed to create texture layout: %w", err)
	}
	return l, nil
}

func (b *Backend) createUniforms() error {
	var err error
	b.uniformBuffer, err = b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Uniform Buffer",
		Size:  uint64(b.opts.MaxDraws * uniformSlot),
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("failed to create uniform buffer: %w", err)
	}
	b.uniformGroup, err = b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: b.uniformLayout,
		Entries: []wgpu.BindGroupEntry{{
			Binding: 0,
			Buffer:  b.uniformBuffer,
			Size:    projection.UniformFloats * 4,
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to create bind group: %w", err)
	}
	return nil
}

func (b *Backend) createTarget() error {
	var err error
	b.targetTexture, err = b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: "Target Texture",
		Size: wgpu.Extent3D{
			Width:              uint32(b.width),
			Height:             uint32(b.height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        targetFormat,
		Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("failed to create target texture: %w", err)
	}
	b.targetView, err = b.targetTexture.CreateView(nil)
	if err != nil {
		return fmt.Errorf("failed to create texture view: %w", err)
	}

	b.bytesPerRow = alignedRow(b.width)
	b.readBuffer, err = b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Read Buffer",
		Size:  uint64(b.bytesPerRow) * uint64(b.height),
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("failed to create read buffer: %w", err)
	}
	return nil
}

// alignedRow is the row pitch of a texture copy, padded to 256 bytes.
func alignedRow(width int) uint32 {
	return (uint32(width*4) + 255) &^ 255
}

func (b *Backend) releaseTarget() {
	if b.readBuffer != nil {
		b.readBuffer.Release()
		b.readBuffer = nil
	}
	if b.targetView != nil {
		b.targetView.Release()
		b.targetView = nil
	}
	if b.targetTexture != nil {
		b.targetTexture.Release()
		b.targetTexture = nil
	}
}

func (b *Backend) Caps() projection.Caps {
	return b.caps
}

func (b *Backend) CompileProgram(kind projection.Kind, src projection.ShaderSource) (render.Program, error) {
	if b.device == nil {
		return nil, errors.New("no device")
	}
	if src.WGSL == "" {
		return nil, fmt.Errorf("%v: no WGSL source", kind)
	}
	module, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          kind.String(),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: src.WGSL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create shader module: %w", err)
	}
	defer module.Release()

	texLayout := b.singleLayout
	if kind == projection.Cube {
		texLayout = b.cubeLayout
	}
	layout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		BindGroupLayouts: []*wgpu.BindGroupLayout{b.uniformLayout, texLayout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline layout: %w", err)
	}
	defer layout.Release()

	pipeline, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  kind.String(),
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
			Buffers: []wgpu.VertexBufferLayout{{
				ArrayStride: projection.VertexStride * 4,
				StepMode:    wgpu.VertexStepModeVertex,
				Attributes: []wgpu.VertexAttribute{
					{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
					{Format: wgpu.VertexFormatFloat32x2, Offset: 3 * 4, ShaderLocation: 1},
				},
			}},
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    targetFormat,
				Blend:     &wgpu.BlendStateReplace,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopologyTriangleList,
			CullMode: wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create render pipeline: %w", err)
	}
	p := &program{kind: kind, pipeline: pipeline}
	b.programs = append(b.programs, p)
	return p, nil
}

func (b *Backend) UploadMesh(m *projection.Mesh) (render.Mesh, error) {
	if b.device == nil {
		return nil, errors.New("no device")
	}
	if m == nil || len(m.Indices) == 0 {
		return nil, errors.New("empty mesh")
	}
	vb, err := b.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Vertex Buffer",
		Contents: wgpu.ToBytes(m.Vertices),
		Usage:    wgpu.BufferUsageVertex,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex buffer: %w", err)
	}
	ib, err := b.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Index Buffer",
		Contents: wgpu.ToBytes(m.Indices),
		Usage:    wgpu.BufferUsageIndex,
	})
	if err != nil {
		vb.Release()
		return nil, fmt.Errorf("failed to create index buffer: %w", err)
	}
	out := &mesh{vertices: vb, indices: ib, count: uint32(len(m.Indices))}
	b.meshes = append(b.meshes, out)
	return out, nil
}

func (b *Backend) UploadTexture(img image.Image, opts projection.TextureOptions) (render.Texture, error) {
	if b.device == nil {
		return nil, errors.New("no device")
	}
	if img == nil {
		return nil, errors.New("nil image")
	}
	bounds := img.Bounds()
	if n := b.caps.MaxTextureSize; n > 0 && (bounds.Dx() > n || bounds.Dy() > n) {
		return nil, fmt.Errorf("texture %vx%v exceeds %v", bounds.Dx(), bounds.Dy(), n)
	}
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != 4*bounds.Dx() {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}

	size := wgpu.Extent3D{Width: uint32(bounds.Dx()), Height: uint32(bounds.Dy()), DepthOrArrayLayers: 1}
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension:     wgpu.TextureDimension2D,
		Size:          size,
		Format:        wgpu.TextureFormatRGBA8Unorm,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create texture: %w", err)
	}
	// Row 0 of the image is the top; texture coordinate v=0 samples it.
	b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{Texture: tex, MipLevel: 0, Origin: wgpu.Origin3D{}, Aspect: wgpu.TextureAspectAll},
		rgba.Pix,
		&wgpu.TextureDataLayout{Offset: 0, BytesPerRow: size.Width * 4, RowsPerImage: size.Height},
		&size,
	)
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("failed to create texture view: %w", err)
	}
	t := &texture{tex: tex, view: view, size: bounds.Size()}
	t.group, err = b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: b.singleLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Sampler: b.samplers[opts.WrapU]},
			{Binding: 1, TextureView: view},
		},
	})
	if err != nil {
		view.Release()
		tex.Release()
		return nil, fmt.Errorf("failed to create texture bind group: %w", err)
	}
	b.textures[t] = struct{}{}
	return t, nil
}

func (b *Backend) ReleaseTexture(rt render.Texture) {
	t, ok := rt.(*texture)
	if !ok {
		return
	}
	if _, live := b.textures[t]; !live {
		return
	}
	delete(b.textures, t)
	for key, g := range b.cubes {
		for _, f := range key {
			if f == t {
				g.Release()
				delete(b.cubes, key)
				break
			}
		}
	}
	releaseTexture(t)
}

func releaseTexture(t *texture) {
	t.group.Release()
	t.view.Release()
	t.tex.Release()
}

func (b *Backend) Resize(width, height int) {
	if width <= 0 || height <= 0 || b.device == nil || (width == b.width && height == b.height) {
		return
	}
	b.releaseTarget()
	b.width, b.height = width, height
	if err := b.createTarget(); err != nil {
		b.log.WithError(err).Error("resize")
	}
}

func (b *Backend) BeginFrame(background mgl32.Vec4) {
	if b.targetView == nil {
		return
	}
	b.draws, b.dropped = 0, 0
	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		b.log.WithError(err).Warn("BeginFrame")
		return
	}
	b.encoder = encoder
	b.pass = encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:    b.targetView,
			LoadOp:  wgpu.LoadOpClear,
			StoreOp: wgpu.StoreOpStore,
			ClearValue: wgpu.Color{
				R: float64(background[0]),
				G: float64(background[1]),
				B: float64(background[2]),
				A: float64(background[3]),
			},
		}},
	})
}

func (b *Backend) Draw(dc *render.DrawCall) {
	if b.pass == nil || dc == nil {
		return
	}
	p, ok := dc.Program.(*program)
	if !ok {
		return
	}
	m, ok := dc.Mesh.(*mesh)
	if !ok {
		return
	}
	group := b.textureGroup(p.kind, dc)
	if group == nil {
		return
	}
	if b.draws >= b.opts.MaxDraws {
		b.dropped++
		return
	}
	offset := uint32(b.draws * uniformSlot)
	b.draws++

	packUniforms(&b.scratch, &dc.Uniforms)
	b.queue.WriteBuffer(b.uniformBuffer, uint64(offset), wgpu.ToBytes(b.scratch[:]))

	b.pass.SetPipeline(p.pipeline)
	b.pass.SetBindGroup(0, b.uniformGroup, []uint32{offset})
	b.pass.SetBindGroup(1, group, nil)
	b.pass.SetVertexBuffer(0, m.vertices, 0, wgpu.WholeSize)
	b.pass.SetIndexBuffer(m.indices, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
	b.pass.DrawIndexed(m.count, 1, 0, 0, 0)
}

// textureGroup returns the bind group holding the draw's textures, or nil
// when one is missing. Cube groups come from BindTextures.
func (b *Backend) textureGroup(kind projection.Kind, dc *render.DrawCall) *wgpu.BindGroup {
	if kind != projection.Cube {
		t, ok := dc.Textures[0].(*texture)
		if !ok {
			return nil
		}
		return t.group
	}
	key, ok := cubeKey(dc.Textures[:])
	if !ok {
		return nil
	}
	return b.cubes[key]
}

// cubeKey identifies the bind group of six cube face textures.
func cubeKey(textures []render.Texture) (key [projection.NumFaces]*texture, ok bool) {
	if len(textures) != projection.NumFaces {
		return key, false
	}
	for i, rt := range textures {
		t, isTex := rt.(*texture)
		if !isTex || t == nil {
			return key, false
		}
		key[i] = t
	}
	return key, true
}

// BindTextures creates the bind group of a cube's faces. Other kinds bind
// the group made by UploadTexture.
func (b *Backend) BindTextures(kind projection.Kind, textures []render.Texture) error {
	if kind != projection.Cube {
		return nil
	}
	if b.device == nil {
		return errors.New("no device")
	}
	key, ok := cubeKey(textures)
	if !ok {
		return fmt.Errorf("need %v face textures of this backend, got %v", projection.NumFaces, len(textures))
	}
	if _, ok := b.cubes[key]; ok {
		return nil
	}
	entries := []wgpu.BindGroupEntry{{Binding: 0, Sampler: b.samplers[projection.ClampToEdge]}}
	for i, t := range key {
		entries = append(entries, wgpu.BindGroupEntry{Binding: uint32(i + 1), TextureView: t.view})
	}
	g, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{Layout: b.cubeLayout, Entries: entries})
	if err != nil {
		return fmt.Errorf("failed to create cube bind group: %w", err)
	}
	b.cubes[key] = g
	return nil
}

// packUniforms lays u out the way the WGSL Uniforms struct reads it.
func packUniforms(dst *[projection.UniformFloats]float32, u *render.Uniforms) {
	copy(dst[0:16], u.Projection[:])
	copy(dst[16:32], u.Camera[:])
	copy(dst[32:36], u.Rect[:])
	copy(dst[36:40], u.AOV[:])
	copy(dst[40:44], u.Background[:])
	dst[44] = float32(u.Face)
	dst[45], dst[46], dst[47] = 0, 0, 0
}

func (b *Backend) EndFrame() error {
	if b.pass == nil {
		return errors.New("no frame")
	}
	pass, encoder := b.pass, b.encoder
	b.pass, b.encoder = nil, nil
	defer encoder.Release()

	err := pass.End()
	pass.Release()
	if err != nil {
		return err
	}
	if b.dropped > 0 {
		b.log.WithField("dropped", b.dropped).Warn("frame exceeded MaxDraws")
	}
	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	return nil
}

// Snapshot copies the last frame to the CPU.
func (b *Backend) Snapshot() (*image.RGBA, error) {
	if b.readBuffer == nil {
		return nil, errors.New("no target")
	}
	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	encoder.CopyTextureToBuffer(
		b.targetTexture.AsImageCopy(),
		&wgpu.ImageCopyBuffer{
			Buffer: b.readBuffer,
			Layout: wgpu.TextureDataLayout{
				Offset:       0,
				BytesPerRow:  b.bytesPerRow,
				RowsPerImage: uint32(b.height),
			},
		},
		&wgpu.Extent3D{
			Width:              uint32(b.width),
			Height:             uint32(b.height),
			DepthOrArrayLayers: 1,
		},
	)
	commandBuffer, err := encoder.Finish(nil)
	encoder.Release()
	if err != nil {
		return nil, err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()

	size := uint64(b.bytesPerRow) * uint64(b.height)
	done := make(chan struct{})
	var mapStatus wgpu.BufferMapAsyncStatus
	b.readBuffer.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		mapStatus = status
		close(done)
	})
	for mapped := false; !mapped; {
		b.device.Poll(false, nil)
		select {
		case <-done:
			mapped = true
		default:
		}
	}
	if mapStatus != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("failed to map read buffer: %v", mapStatus)
	}

	data := b.readBuffer.GetMappedRange(0, uint(size))
	img := unpadRows(data, b.width, b.height, b.bytesPerRow)
	b.readBuffer.Unmap()
	return img, nil
}

// unpadRows copies rows with a pitch of bytesPerRow into a tight image.
func unpadRows(data []byte, width, height int, bytesPerRow uint32) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		src := int(uint32(y) * bytesPerRow)
		copy(img.Pix[y*img.Stride:(y+1)*img.Stride], data[src:src+width*4])
	}
	return img
}

func (b *Backend) Close() {
	if b.pass != nil {
		b.pass.Release()
		b.pass = nil
	}
	if b.encoder != nil {
		b.encoder.Release()
		b.encoder = nil
	}
	for _, g := range b.cubes {
		g.Release()
	}
	clear(b.cubes)
	for t := range b.textures {
		releaseTexture(t)
	}
	clear(b.textures)
	for _, m := range b.meshes {
		m.vertices.Release()
		m.indices.Release()
	}
	b.meshes = nil
	for _, p := range b.programs {
		p.pipeline.Release()
	}
	b.programs = nil
	b.releaseTarget()
	for w, s := range b.samplers {
		s.Release()
		delete(b.samplers, w)
	}
	if b.uniformGroup != nil {
		b.uniformGroup.Release()
		b.uniformGroup = nil
	}
	if b.uniformBuffer != nil {
		b.uniformBuffer.Release()
		b.uniformBuffer = nil
	}
	for _, l := range []**wgpu.BindGroupLayout{&b.uniformLayout, &b.singleLayout, &b.cubeLayout} {
		if *l != nil {
			(*l).Release()
			*l = nil
		}
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
	b.queue = nil
}
