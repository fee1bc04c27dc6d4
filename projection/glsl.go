package projection

// GLSL programs share the attribute names vert and vertTexCoord, the
// matrices projection and camera, and the output outputColor.

const sphereVertexShader = `#version 330
uniform mat4 projection;
uniform mat4 camera;
in vec3 vert;
in vec2 vertTexCoord;
out vec3 fragDir;
void main() {
	gl_Position = projection * camera * vec4(vert, 1);
	fragDir = vert;
}
` + "\x00"

const equirectFragmentShader = `#version 330
precision highp float;
in vec3 fragDir;
out vec4 outputColor;
uniform sampler2D u_image;
uniform vec4 u_aov;
uniform vec4 u_background;
const float PI = 3.14159265358979;
void main() {
	vec3 d = normalize(fragDir);
	float u = atan(d.x, -d.z) / u_aov.x + 0.5;
	float v = (asin(clamp(d.y, -1.0, 1.0)) - u_aov.z) / u_aov.y + 0.5;
	bool full = u_aov.x >= 2.0 * PI - 1e-4;
	if (v < 0.0 || v > 1.0 || (!full && (u < 0.0 || u > 1.0))) {
		outputColor = u_background;
		return;
	}
	outputColor = texture(u_image, vec2(u, 1.0 - v));
}
` + "\x00"

const cubeFragmentShader = `#version 330
precision highp float;
in vec3 fragDir;
out vec4 outputColor;
uniform sampler2D u_face0;
uniform sampler2D u_face1;
uniform sampler2D u_face2;
uniform sampler2D u_face3;
uniform sampler2D u_face4;
uniform sampler2D u_face5;
vec4 faceTexel(sampler2D tex, vec2 st) {
	return texture(tex, vec2(st.x + 1.0, 1.0 - st.y) * 0.5);
}
void main() {
	vec3 d = fragDir;
	vec3 a = abs(d);
	if (a.z >= a.x && a.z >= a.y) {
		if (d.z < 0.0) {
			outputColor = faceTexel(u_face0, vec2(d.x, d.y) / -d.z);
		} else {
			outputColor = faceTexel(u_face1, vec2(-d.x, d.y) / d.z);
		}
	} else if (a.x >= a.y) {
		if (d.x < 0.0) {
			outputColor = faceTexel(u_face4, vec2(d.z / d.x, d.y / -d.x));
		} else {
			outputColor = faceTexel(u_face5, vec2(d.z / d.x, d.y / d.x));
		}
	} else {
		if (d.y > 0.0) {
			outputColor = faceTexel(u_face2, vec2(d.x / d.y, d.z / d.y));
		} else {
			outputColor = faceTexel(u_face3, vec2(d.x / -d.y, d.z / d.y));
		}
	}
}
` + "\x00"

const tileVertexShader = `#version 330
uniform mat4 projection;
uniform mat4 camera;
uniform int u_face;
uniform vec4 u_rect;
in vec3 vert;
in vec2 vertTexCoord;
out vec2 fragTexCoord;
vec3 faceDirection(int face, float s, float t) {
	if (face == 0) return vec3(s, t, -1.0);
	if (face == 1) return vec3(-s, t, 1.0);
	if (face == 2) return vec3(s, 1.0, t);
	if (face == 3) return vec3(s, -1.0, -t);
	if (face == 4) return vec3(-1.0, t, -s);
	return vec3(1.0, t, s);
}
void main() {
	vec2 uv = mix(u_rect.xy, u_rect.zw, vert.xy);
	vec3 p = faceDirection(u_face, uv.x * 2.0 - 1.0, 1.0 - uv.y * 2.0);
	gl_Position = projection * camera * vec4(p, 1);
	fragTexCoord = vertTexCoord;
}
` + "\x00"

const tileFragmentShader = `#version 330
precision highp float;
in vec2 fragTexCoord;
out vec4 outputColor;
uniform sampler2D u_tile;
void main() {
	outputColor = texture(u_tile, fragTexCoord);
}
` + "\x00"

const flatVertexShader = `#version 330
uniform mat4 projection;
uniform mat4 camera;
uniform vec4 u_aov;
in vec3 vert;
in vec2 vertTexCoord;
out vec2 fragTexCoord;
void main() {
	gl_Position = projection * camera * vec4(vert.x * u_aov.x, vert.y * u_aov.y, vert.z, 1);
	fragTexCoord = vertTexCoord;
}
` + "\x00"

const flatFragmentShader = `#version 330
precision highp float;
in vec2 fragTexCoord;
out vec4 outputColor;
uniform sampler2D u_image;
void main() {
	outputColor = texture(u_image, fragTexCoord);
}
` + "\x00"

var (
	equirectShaders = ShaderSource{Vertex: sphereVertexShader, Fragment: equirectFragmentShader, WGSL: wgslEquirect}
	cubeShaders     = ShaderSource{Vertex: sphereVertexShader, Fragment: cubeFragmentShader, WGSL: wgslCube}
	tileShaders     = ShaderSource{Vertex: tileVertexShader, Fragment: tileFragmentShader, WGSL: wgslTile}
	flatShaders     = ShaderSource{Vertex: flatVertexShader, Fragment: flatFragmentShader, WGSL: wgslFlat}
)

// TextureUniforms returns the sampler uniform names a kind binds, in
// texture unit order.
func TextureUniforms(k Kind) []string {
	switch k {
	case Cube:
		return []string{"u_face0\x00", "u_face1\x00", "u_face2\x00", "u_face3\x00", "u_face4\x00", "u_face5\x00"}
	case Multires:
		return []string{"u_tile\x00"}
	}
	return []string{"u_image\x00"}
}
