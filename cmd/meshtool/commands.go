package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/midgard-mesh/internal/config"
	"github.com/Faultbox/midgard-mesh/internal/engine/mesh"
	"github.com/Faultbox/midgard-mesh/internal/engine/physics"
	"github.com/Faultbox/midgard-mesh/internal/engine/resource"
	"github.com/Faultbox/midgard-mesh/internal/engine/vertex"
	"github.com/Faultbox/midgard-mesh/internal/watch"
	"github.com/Faultbox/midgard-mesh/pkg/math"
)

var errNoColors = errors.New("mesh has no color attribute")

func cmdInfo(args []string, out io.Writer) error {
	s, m, err := open("info", args, nil)
	if err != nil {
		return err
	}
	defer s.Close()
	defer m.Destroy()

	fmt.Fprintf(out, "Mesh:      %s (%s)\n", m.Name(), m.ID())
	fmt.Fprintf(out, "Vertices:  %d\n", m.VertexCount())
	fmt.Fprintf(out, "Indices:   %d\n", m.IndexCount())
	fmt.Fprintf(out, "Layout:    %s\n", m.VertexDeclaration())
	fmt.Fprintf(out, "Readable:  %t\n", m.Readable())
	fmt.Fprintf(out, "Memory:    cpu %d B, gpu %d B\n", m.CPUMemory(), m.GPUMemory())
	printBounds(out, m.Bounds())

	fmt.Fprintf(out, "Submeshes: %d\n", m.SubMeshCount())
	for _, sub := range m.SubMeshes() {
		fmt.Fprintf(out, "  #%d  indices [%d, +%d)  ranges %d  bone lists %d\n",
			sub.IndexInMesh(), sub.IndexStart(), sub.IndexCount(),
			len(sub.Ranges()), len(sub.BoneIndexLists()))
	}

	if names := m.BoneNames(); len(names) > 0 {
		fmt.Fprintf(out, "Bones:     %s\n", strings.Join(names, ", "))
		fmt.Fprintf(out, "Bind pose: %v\n", m.BindPoseIndices())
		fmt.Fprintf(out, "Marks:     %d\n", len(m.SkinPathMarks()))
		for i, inv := range m.InverseAbsoluteBindPoses() {
			fmt.Fprintf(out, "  #%d  inverse bind translation %s\n", i, vec3(inv.Column(3).XYZ()))
		}
	}
	return nil
}

func cmdBounds(args []string, out io.Writer) error {
	s, m, err := open("bounds", args, nil)
	if err != nil {
		return err
	}
	defer s.Close()
	defer m.Destroy()

	printBounds(out, m.Bounds())
	return nil
}

func printBounds(out io.Writer, b mesh.Bounds) {
	if b.Empty() {
		fmt.Fprintln(out, "Bounds:    empty")
		return
	}
	fmt.Fprintf(out, "Bounds:    min %s max %s\n", vec3(b.Min), vec3(b.Max))
	fmt.Fprintf(out, "Center:    %s size %s\n", vec3(b.Center()), vec3(b.Size()))
}

func cmdCollision(args []string, out io.Writer) error {
	s, m, err := open("collision", args, nil)
	if err != nil {
		return err
	}
	defer s.Close()
	defer m.Destroy()

	tm, err := m.PhysicsMesh()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Mirror X:  %t\n", s.cfg.Mesh.MirrorPhysicsX)
	if im, ok := tm.(*physics.IndexedMesh); ok {
		fmt.Fprintf(out, "Triangles: %d\n", im.TriangleCount())
		fmt.Fprintf(out, "Vertices:  %d (welded)\n", im.VertexCount())
		fmt.Fprintf(out, "Degenerate: %d\n", degenerateTriangles(im.Triangles()))
	}
	return nil
}

func cmdDump(args []string, out io.Writer) error {
	var limit int
	s, m, err := open("dump", args, func(fs *flag.FlagSet) {
		fs.IntVar(&limit, "n", 4, "Vertices to print (0 = all)")
	})
	if err != nil {
		return err
	}
	defer s.Close()
	defer m.Destroy()

	n := m.VertexCount()
	if limit > 0 && limit < n {
		n = limit
	}

	for _, el := range m.VertexDeclaration().Elements() {
		rows, err := attributeRows(m, el.Usage)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%v (%v):\n", el.Usage, el.Format)
		for i := 0; i < n && i < len(rows); i++ {
			fmt.Fprintf(out, "  %4d  %s\n", i, rows[i])
		}
	}
	return nil
}

// attributeRows formats one attribute per vertex.
func attributeRows(m *mesh.Mesh, u vertex.Usage) ([]string, error) {
	switch u {
	case vertex.UsagePosition:
		return rows[math.Vec3](m.Positions())
	case vertex.UsageNormal:
		return rows[math.Vec3](m.Normals())
	case vertex.UsageColor:
		return rows[math.Color](m.Colors())
	case vertex.UsageUV0:
		return rows[math.Vec2](m.UVs(0))
	case vertex.UsageUV1:
		return rows[math.Vec2](m.UVs(1))
	case vertex.UsageTangent:
		return rows[math.Vec4](m.Tangents())
	case vertex.UsageBoneWeight:
		return rows[math.Vec4](m.BoneWeights())
	case vertex.UsageBoneIndices:
		return rows[vertex.ByteQuad](m.BoneIndices())
	}
	return nil, fmt.Errorf("%w: %s", mesh.ErrUnsupportedAttribute, u)
}

func rows[T any](values []T, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprintf("%v", v)
	}
	return out, nil
}

func cmdRecolor(args []string, out io.Writer) error {
	var (
		colorArg string
		first    int
		count    int
	)
	s, m, err := open("recolor", args, func(fs *flag.FlagSet) {
		fs.StringVar(&colorArg, "color", "1,1,1,1", "RGBA color, comma separated floats")
		fs.IntVar(&first, "first", 0, "First vertex to recolor")
		fs.IntVar(&count, "count", 0, "Vertices to recolor (0 = to the end)")
	})
	if err != nil {
		return err
	}
	defer s.Close()
	defer m.Destroy()

	c, err := parseColor(colorArg)
	if err != nil {
		return err
	}
	if !m.VertexDeclaration().Has(vertex.UsageColor) {
		return fmt.Errorf("%s: %w", m.Name(), errNoColors)
	}
	if count <= 0 {
		count = m.VertexCount() - first
	}
	if count <= 0 {
		return fmt.Errorf("%w: first %d past %d vertices", mesh.ErrTooManyValues, first, m.VertexCount())
	}

	colors := make([]math.Color, count)
	for i := range colors {
		colors[i] = c
	}

	if s.recorder != nil {
		s.recorder.Reset()
	}
	if err := m.SetColorsAt(first, colors); err != nil {
		return err
	}
	if err := m.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "Recolored: %d vertices from %d\n", count, first)
	if s.recorder == nil {
		fmt.Fprintln(out, "Uploads:   flushed")
		return nil
	}
	for _, u := range s.recorder.Uploads() {
		fmt.Fprintf(out, "Upload:    %s [%d, +%d)\n", u.Buffer, u.Offset, u.Length)
	}
	return nil
}

func parseColor(s string) (math.Color, error) {
	ch, err := parseFloats(s, 4)
	if err != nil {
		return math.Color{}, fmt.Errorf("color %w", err)
	}
	return math.Color{R: ch[0], G: ch[1], B: ch[2], A: ch[3]}, nil
}

func parseVec3(s string) (math.Vec3, error) {
	v, err := parseFloats(s, 3)
	if err != nil {
		return math.Vec3{}, fmt.Errorf("vector %w", err)
	}
	return math.Vec3{X: v[0], Y: v[1], Z: v[2]}, nil
}

// parseFloats splits s on commas into exactly n floats.
func parseFloats(s string, n int) ([]float32, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("%q: want %d comma separated values", s, n)
	}
	out := make([]float32, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", s, err)
		}
		out[i] = float32(v)
	}
	return out, nil
}

func cmdTransform(args []string, out io.Writer) error {
	var translateArg, scaleArg string
	s, m, err := open("transform", args, func(fs *flag.FlagSet) {
		fs.StringVar(&translateArg, "translate", "0,0,0", "Translation x,y,z")
		fs.StringVar(&scaleArg, "scale", "1,1,1", "Scale x,y,z, applied before the translation")
	})
	if err != nil {
		return err
	}
	defer s.Close()
	defer m.Destroy()

	t, err := parseVec3(translateArg)
	if err != nil {
		return err
	}
	sc, err := parseVec3(scaleArg)
	if err != nil {
		return err
	}
	xf := math.Translate(t.X, t.Y, t.Z).Mul(math.Scale(sc.X, sc.Y, sc.Z))

	positions, err := m.Positions()
	if err != nil {
		return err
	}
	for i, p := range positions {
		positions[i] = xf.TransformPoint(p)
	}

	if s.recorder != nil {
		s.recorder.Reset()
	}
	if err := m.SetPositions(positions); err != nil {
		return err
	}
	if err := m.Flush(); err != nil {
		return err
	}

	// A mirroring scale turns every triangle inside out.
	flipped := sc.X*sc.Y*sc.Z < 0
	if flipped {
		indices, err := m.Indices()
		if err != nil {
			return err
		}
		for i := 0; i+2 < len(indices); i += 3 {
			indices[i+1], indices[i+2] = indices[i+2], indices[i+1]
		}
		if err := m.SetIndices(0, indices); err != nil {
			return err
		}
	}

	if err := m.RefreshBounds(); err != nil {
		return err
	}
	m.InvalidatePhysicsMesh()
	tm, err := m.PhysicsMesh()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Transform: translate %s scale %s\n", vec3(t), vec3(sc))
	printBounds(out, m.Bounds())
	if flipped {
		fmt.Fprintln(out, "Winding:   flipped")
	} else {
		fmt.Fprintln(out, "Winding:   kept")
	}
	if im, ok := tm.(*physics.IndexedMesh); ok {
		fmt.Fprintf(out, "Degenerate: %d\n", degenerateTriangles(im.Triangles()))
	}
	if s.recorder != nil {
		for _, u := range s.recorder.Uploads() {
			fmt.Fprintf(out, "Upload:    %s [%d, +%d)\n", u.Buffer, u.Offset, u.Length)
		}
	}
	return nil
}

// degenerateTriangles counts triangles with zero area.
func degenerateTriangles(tris [][3]math.Vec3) int {
	n := 0
	for _, tri := range tris {
		if tri[1].Sub(tri[0]).Cross(tri[2].Sub(tri[0])).Length() == 0 {
			n++
		}
	}
	return n
}

func cmdConfig(args []string, out io.Writer) error {
	var (
		outPath string
		save    bool
	)
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	flags := config.BindFlags(fs)
	fs.StringVar(&outPath, "o", "", "Write the effective config to this path")
	fs.BoolVar(&save, "save", false, "Write the effective config to the user config directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}

	if outPath != "" {
		if err := cfg.SaveTo(outPath); err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved:     %s\n", outPath)
	}
	if save {
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved:     %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	}
	return nil
}

func cmdClone(args []string, out io.Writer) error {
	s, m, err := open("clone", args, nil)
	if err != nil {
		return err
	}
	defer s.Close()
	defer m.Destroy()

	c, err := m.Clone()
	if err != nil {
		return err
	}
	defer c.Destroy()

	// Shift the copy one unit along X; the source must not move.
	positions, err := c.Positions()
	if err != nil {
		return err
	}
	for i := range positions {
		positions[i].X++
	}
	if err := c.SetPositions(positions); err != nil {
		return err
	}
	if err := c.Flush(); err != nil {
		return err
	}
	if err := c.RefreshBounds(); err != nil {
		return err
	}

	fmt.Fprintf(out, "Source:    %s\n", m.ID())
	printBounds(out, m.Bounds())
	fmt.Fprintf(out, "Clone:     %s\n", c.ID())
	printBounds(out, c.Bounds())
	fmt.Fprintf(out, "Submeshes: %d / %d\n", m.SubMeshCount(), c.SubMeshCount())
	return nil
}

func cmdWatch(args []string, out io.Writer) error {
	cfg, path, err := parseArgs("watch", args, nil)
	if err != nil {
		return err
	}
	s, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	w, err := watch.New(cfg.Watch.Debounce, nil)
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(path); err != nil {
		return err
	}

	var current *mesh.Mesh
	reload := func(p string) {
		m, err := s.load(p)
		if err != nil {
			s.log.Warn("reload failed", zap.String("file", p), zap.Error(err))
			return
		}
		if current != nil {
			current.Destroy()
		}
		current = m
		fmt.Fprintf(out, "%s:\n", p)
		printBounds(out, m.Bounds())
	}
	reload(path)
	defer func() {
		if current != nil {
			current.Destroy()
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := w.Run(ctx, reload); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func cmdUpload(args []string, out io.Writer) error {
	s, m, err := open("upload", args, nil)
	if err != nil {
		return err
	}
	defer s.Close()
	defer m.Destroy()

	if err := m.Flush(); err != nil {
		return err
	}
	if s.win != nil {
		s.win.Finish()
	}

	fmt.Fprintf(out, "Backend:   %s\n", s.cfg.GPU.Backend)
	fmt.Fprintf(out, "Mesh GPU:  %d B\n", m.GPUMemory())
	fmt.Fprintf(out, "Total GPU: %d B (all live meshes)\n", resource.TotalGPUMemory())
	switch {
	case s.gl != nil:
		fmt.Fprintf(out, "Allocated: %d B in GL buffers\n", s.gl.Allocated())
	case s.recorder != nil:
		fmt.Fprintf(out, "Uploads:   %d\n", len(s.recorder.Uploads()))
		fmt.Fprintf(out, "Buffers:   %d live\n", s.recorder.LiveBuffers())
		fmt.Fprintf(out, "States:    %d calls\n", len(s.recorder.Calls()))
	}
	return nil
}

func vec3(v math.Vec3) string {
	return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
}
