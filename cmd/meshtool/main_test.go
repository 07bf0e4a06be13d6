package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Faultbox/midgard-mesh/internal/config"
)

const skinnedQuad = `{
  "asset": {"version": "2.0"},
  "scene": 0,
  "scenes": [{"nodes": [0, 1]}],
  "nodes": [
    {"name": "body", "mesh": 0, "skin": 0},
    {"name": "root", "children": [2]},
    {"name": "arm"}
  ],
  "skins": [{"joints": [1, 2], "inverseBindMatrices": 4}],
  "meshes": [{
    "name": "quad",
    "primitives": [
      {"attributes": {"POSITION": 0, "TEXCOORD_0": 1, "JOINTS_0": 2, "WEIGHTS_0": 3}, "indices": 5},
      {"attributes": {"POSITION": 0, "TEXCOORD_0": 1, "JOINTS_0": 2, "WEIGHTS_0": 3}, "indices": 6}
    ]
  }],
  "buffers": [{"byteLength": 316, "uri": "data:application/octet-stream;base64,AAAAAAAAAAAAAAAAAACAPwAAAAAAAAAAAACAPwAAgD8AAAAAAAAAAAAAgD8AAAAAAAAAAAAAAAAAAIA/AAAAAAAAgD8AAIA/AAAAAAAAgD8AAAAAAAAAAAEAAAAAAAAAAQAAAAAAAAAAAAAAAAAAAAAAgD8AAAAAAAAAAAAAAAAAAIA/AAAAAAAAAAAAAAAAAACAPwAAAAAAAAAAAAAAAAAAgD8AAAAAAAAAAAAAAAAAAIA/AAAAAAAAAAAAAAAAAAAAAAAAgD8AAAAAAAAAAAAAAAAAAAAAAACAPwAAAAAAAAAAAAAAAAAAAAAAAIA/AACAPwAAAAAAAAAAAAAAAAAAAAAAAIA/AAAAAAAAAAAAAAAAAAAAAAAAgD8AAAAAAACAvwAAAAAAAAAAAACAPwAAAQACAAAAAgADAA=="}],
  "bufferViews": [
    {"buffer": 0, "byteOffset": 0, "byteLength": 48},
    {"buffer": 0, "byteOffset": 48, "byteLength": 32},
    {"buffer": 0, "byteOffset": 80, "byteLength": 32},
    {"buffer": 0, "byteOffset": 112, "byteLength": 64},
    {"buffer": 0, "byteOffset": 176, "byteLength": 128},
    {"buffer": 0, "byteOffset": 304, "byteLength": 12}
  ],
  "accessors": [
    {"bufferView": 0, "componentType": 5126, "count": 4, "type": "VEC3", "min": [0, 0, 0], "max": [1, 1, 0]},
    {"bufferView": 1, "componentType": 5126, "count": 4, "type": "VEC2"},
    {"bufferView": 2, "componentType": 5123, "count": 4, "type": "VEC4"},
    {"bufferView": 3, "componentType": 5126, "count": 4, "type": "VEC4"},
    {"bufferView": 4, "componentType": 5126, "count": 2, "type": "MAT4"},
    {"bufferView": 5, "byteOffset": 0, "componentType": 5123, "count": 3, "type": "SCALAR"},
    {"bufferView": 5, "byteOffset": 6, "componentType": 5123, "count": 3, "type": "SCALAR"}
  ]
}`

// colorTri is one triangle with normalized byte colors: red, green, blue.
const colorTri = `{
  "asset": {"version": "2.0"},
  "meshes": [{
    "name": "tri",
    "primitives": [{"attributes": {"POSITION": 0, "COLOR_0": 1}, "indices": 2}]
  }],
  "buffers": [{"byteLength": 56, "uri": "data:application/octet-stream;base64,AAAAAAAAAAAAAAAAAAAAQAAAAAAAAAAAAAAAAAAAQEAAAAAA/wAA/wD/AP8AAP//AAABAAIAAAA="}],
  "bufferViews": [
    {"buffer": 0, "byteOffset": 0, "byteLength": 36},
    {"buffer": 0, "byteOffset": 36, "byteLength": 12},
    {"buffer": 0, "byteOffset": 48, "byteLength": 6}
  ],
  "accessors": [
    {"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3", "min": [0, 0, 0], "max": [2, 3, 0]},
    {"bufferView": 1, "componentType": 5121, "normalized": true, "count": 3, "type": "VEC4"},
    {"bufferView": 2, "componentType": 5123, "count": 3, "type": "SCALAR"}
  ]
}`

const testConfig = `gpu:
  backend: headless
mesh:
  mirror_physics_x: true
logging:
  level: error
`

// fixture writes the config and a glTF file and returns the arguments that
// point a command at them.
func fixture(t *testing.T, gltf string) []string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "meshtool.yaml")
	if err := os.WriteFile(cfgPath, []byte(testConfig), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	meshPath := filepath.Join(dir, "mesh.gltf")
	if err := os.WriteFile(meshPath, []byte(gltf), 0644); err != nil {
		t.Fatalf("write mesh: %v", err)
	}
	return []string{"-config", cfgPath, meshPath}
}

// withFlags inserts flags before the mesh path.
func withFlags(args []string, flags ...string) []string {
	out := append([]string{}, args[:len(args)-1]...)
	out = append(out, flags...)
	return append(out, args[len(args)-1])
}

func runOK(t *testing.T, command string, args []string) string {
	t.Helper()
	var out bytes.Buffer
	if err := run(command, args, &out); err != nil {
		t.Fatalf("%s: %v", command, err)
	}
	return out.String()
}

func expectLines(t *testing.T, out string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q:\n%s", w, out)
		}
	}
}

func TestInfo(t *testing.T) {
	out := runOK(t, "info", fixture(t, skinnedQuad))
	expectLines(t, out,
		"Mesh:      quad",
		"Vertices:  8",
		"Indices:   6",
		"Readable:  true",
		"Memory:    cpu 332 B, gpu 332 B",
		"Submeshes: 2",
		"#1  indices [3, +3)",
		"Bones:     root, arm",
		"Bind pose: [0 1]",
		"#1  inverse bind translation (-1, 0, 0)",
	)
}

func TestInfoUnreadable(t *testing.T) {
	out := runOK(t, "info", withFlags(fixture(t, skinnedQuad), "-unreadable"))
	expectLines(t, out,
		"Readable:  false",
		"Memory:    cpu 12 B, gpu 332 B",
	)
}

func TestBounds(t *testing.T) {
	out := runOK(t, "bounds", fixture(t, skinnedQuad))
	expectLines(t, out,
		"min (0, 0, 0) max (1, 1, 0)",
		"Center:    (0.5, 0.5, 0) size (1, 1, 0)",
	)
}

func TestCollision(t *testing.T) {
	out := runOK(t, "collision", fixture(t, skinnedQuad))
	expectLines(t, out,
		"Mirror X:  true",
		"Triangles: 2",
		"Vertices:  4 (welded)",
		"Degenerate: 0",
	)
}

func TestDump(t *testing.T) {
	out := runOK(t, "dump", withFlags(fixture(t, colorTri), "-n", "2"))
	expectLines(t, out, "POSITION", "COLOR", "{2 0 0}", "{1 0 0 1}", "{0 1 0 1}")
	if strings.Contains(out, "{0 3 0}") {
		t.Errorf("dump -n 2 printed the third vertex:\n%s", out)
	}
}

func TestRecolor(t *testing.T) {
	args := withFlags(fixture(t, colorTri), "-color", "1,1,0,1", "-first", "1", "-count", "1")
	out := runOK(t, "recolor", args)
	// Stride is 28 (position 12 + color 16); vertex 1 color starts at 40.
	expectLines(t, out,
		"Recolored: 1 vertices from 1",
		"Upload:    tri.vb [40, +16)",
	)
	if n := strings.Count(out, "Upload:"); n != 1 {
		t.Errorf("uploads: got %d, want 1", n)
	}
}

func TestRecolorWithoutColors(t *testing.T) {
	err := run("recolor", fixture(t, skinnedQuad), &bytes.Buffer{})
	if !errors.Is(err, errNoColors) {
		t.Errorf("got %v, want errNoColors", err)
	}
}

func TestClone(t *testing.T) {
	out := runOK(t, "clone", fixture(t, skinnedQuad))
	expectLines(t, out,
		"min (0, 0, 0) max (1, 1, 0)",
		"min (1, 0, 0) max (2, 1, 0)",
		"Submeshes: 2 / 2",
	)
}

func TestTransform(t *testing.T) {
	args := withFlags(fixture(t, colorTri), "-translate", "1,0,0", "-scale", "2,1,1")
	out := runOK(t, "transform", args)
	// Positions sit at the start of each 28 byte record; the last ends at 68.
	expectLines(t, out,
		"Transform: translate (1, 0, 0) scale (2, 1, 1)",
		"min (1, 0, 0) max (5, 3, 0)",
		"Winding:   kept",
		"Degenerate: 0",
		"Upload:    tri.vb [0, +68)",
	)
	if strings.Contains(out, "tri.ib") {
		t.Errorf("kept winding should not upload indices:\n%s", out)
	}
}

func TestTransformMirror(t *testing.T) {
	out := runOK(t, "transform", withFlags(fixture(t, colorTri), "-scale", "-1,1,1"))
	expectLines(t, out,
		"min (-2, 0, 0) max (0, 3, 0)",
		"Winding:   flipped",
		"Upload:    tri.ib [0, +6)",
	)
}

func TestTransformFlatten(t *testing.T) {
	out := runOK(t, "transform", withFlags(fixture(t, colorTri), "-scale", "1,0,1"))
	expectLines(t, out, "Winding:   kept", "Degenerate: 1")
}

func TestTransformBadVector(t *testing.T) {
	err := run("transform", withFlags(fixture(t, colorTri), "-scale", "1,2"), &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "want 3") {
		t.Errorf("got %v, want a vector length error", err)
	}
}

func TestConfig(t *testing.T) {
	args := fixture(t, colorTri)
	cfgArgs := args[:len(args)-1]
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	t.Setenv("APPDATA", dir)

	written := filepath.Join(dir, "out", "meshtool.yaml")
	out := runOK(t, "config", append(cfgArgs, "-o", written, "-save", "-debug"))
	expectLines(t, out,
		"backend: headless",
		"mirror_physics_x: true",
		"level: debug",
		"Saved:     "+written,
	)

	for _, path := range []string{written, filepath.Join(config.ConfigDir(), "config.yaml")} {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read saved config: %v", err)
		}
		if !strings.Contains(string(data), "mirror_physics_x: true") {
			t.Errorf("%s missing mirror_physics_x:\n%s", path, data)
		}
	}
}

func TestUploadHeadless(t *testing.T) {
	out := runOK(t, "upload", fixture(t, skinnedQuad))
	expectLines(t, out,
		"Backend:   headless",
		"Mesh GPU:  332 B",
		"Buffers:   4 live",
	)
}

func TestRunErrors(t *testing.T) {
	if err := run("explode", nil, &bytes.Buffer{}); !errors.Is(err, errUnknownCommand) {
		t.Errorf("unknown command: got %v", err)
	}
	if err := run("info", nil, &bytes.Buffer{}); !errors.Is(err, errUsage) {
		t.Errorf("missing file: got %v", err)
	}
	var out bytes.Buffer
	if err := run("help", nil, &out); err != nil || !strings.Contains(out.String(), "Commands:") {
		t.Errorf("help: err %v, output %q", err, out.String())
	}
}
