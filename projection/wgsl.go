package projection

// UniformFloats is the size, in float32 values, of the uniform block every
// WGSL program reads: projection, camera, rect, aov, background, params.
const UniformFloats = 16 + 16 + 4 + 4 + 4 + 4

const wgslCommon = `
struct Uniforms {
    projection: mat4x4f,
    camera: mat4x4f,
    rect: vec4f,
    aov: vec4f,
    background: vec4f,
    params: vec4f,
};

@group(0) @binding(0) var<uniform> uniforms: Uniforms;
@group(1) @binding(0) var texSampler: sampler;

const PI = 3.14159265358979;

struct VertexOutput {
    @builtin(position) position: vec4f,
    @location(0) dir: vec3f,
    @location(1) uv: vec2f,
};
`

const wgslSphereVertex = `
@vertex
fn vs_main(@location(0) vert: vec3f, @location(1) uv: vec2f) -> VertexOutput {
    var out: VertexOutput;
    out.position = uniforms.projection * uniforms.camera * vec4f(vert, 1.0);
    out.dir = vert;
    out.uv = uv;
    return out;
}
`

const wgslEquirect = wgslCommon + wgslSphereVertex + `
@group(1) @binding(1) var tex0: texture_2d<f32>;

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4f {
    let d = normalize(in.dir);
    let u = atan2(d.x, -d.z) / uniforms.aov.x + 0.5;
    let v = (asin(clamp(d.y, -1.0, 1.0)) - uniforms.aov.z) / uniforms.aov.y + 0.5;
    let full = uniforms.aov.x >= 2.0 * PI - 1e-4;
    let outside = v < 0.0 || v > 1.0 || (!full && (u < 0.0 || u > 1.0));
    let c = textureSampleLevel(tex0, texSampler, vec2f(u, 1.0 - v), 0.0);
    return select(c, uniforms.background, outside);
}
`

const wgslCube = wgslCommon + wgslSphereVertex + `
@group(1) @binding(1) var face0: texture_2d<f32>;
@group(1) @binding(2) var face1: texture_2d<f32>;
@group(1) @binding(3) var face2: texture_2d<f32>;
@group(1) @binding(4) var face3: texture_2d<f32>;
@group(1) @binding(5) var face4: texture_2d<f32>;
@group(1) @binding(6) var face5: texture_2d<f32>;

fn faceUV(st: vec2f) -> vec2f {
    return vec2f(st.x + 1.0, 1.0 - st.y) * 0.5;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4f {
    let d = in.dir;
    let a = abs(d);
    if (a.z >= a.x && a.z >= a.y) {
        if (d.z < 0.0) {
            return textureSampleLevel(face0, texSampler, faceUV(vec2f(d.x, d.y) / -d.z), 0.0);
        }
        return textureSampleLevel(face1, texSampler, faceUV(vec2f(-d.x, d.y) / d.z), 0.0);
    }
    if (a.x >= a.y) {
        if (d.x < 0.0) {
            return textureSampleLevel(face4, texSampler, faceUV(vec2f(d.z / d.x, d.y / -d.x)), 0.0);
        }
        return textureSampleLevel(face5, texSampler, faceUV(vec2f(d.z / d.x, d.y / d.x)), 0.0);
    }
    if (d.y > 0.0) {
        return textureSampleLevel(face2, texSampler, faceUV(vec2f(d.x / d.y, d.z / d.y)), 0.0);
    }
    return textureSampleLevel(face3, texSampler, faceUV(vec2f(d.x / -d.y, d.z / d.y)), 0.0);
}
`

const wgslTile = wgslCommon + `
@group(1) @binding(1) var tile: texture_2d<f32>;

fn faceDirection(face: i32, s: f32, t: f32) -> vec3f {
    switch face {
        case 0: { return vec3f(s, t, -1.0); }
        case 1: { return vec3f(-s, t, 1.0); }
        case 2: { return vec3f(s, 1.0, t); }
        case 3: { return vec3f(s, -1.0, -t); }
        case 4: { return vec3f(-1.0, t, -s); }
        default: { return vec3f(1.0, t, s); }
    }
}

@vertex
fn vs_main(@location(0) vert: vec3f, @location(1) uv: vec2f) -> VertexOutput {
    var out: VertexOutput;
    let fuv = mix(uniforms.rect.xy, uniforms.rect.zw, vert.xy);
    let p = faceDirection(i32(uniforms.params.x), fuv.x * 2.0 - 1.0, 1.0 - fuv.y * 2.0);
    out.position = uniforms.projection * uniforms.camera * vec4f(p, 1.0);
    out.dir = p;
    out.uv = uv;
    return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4f {
    return textureSample(tile, texSampler, in.uv);
}
`

const wgslFlat = wgslCommon + `
@group(1) @binding(1) var tex0: texture_2d<f32>;

@vertex
fn vs_main(@location(0) vert: vec3f, @location(1) uv: vec2f) -> VertexOutput {
    var out: VertexOutput;
    let p = vec3f(vert.x * uniforms.aov.x, vert.y * uniforms.aov.y, vert.z);
    out.position = uniforms.projection * uniforms.camera * vec4f(p, 1.0);
    out.dir = p;
    out.uv = uv;
    return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4f {
    return textureSample(tex0, texSampler, in.uv);
}
`
