package main

import (
	"flag"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-mesh/internal/config"
	"github.com/Faultbox/midgard-mesh/internal/engine/gpu"
	"github.com/Faultbox/midgard-mesh/internal/engine/gpu/glgpu"
	"github.com/Faultbox/midgard-mesh/internal/engine/gpu/headless"
	"github.com/Faultbox/midgard-mesh/internal/engine/mesh"
	"github.com/Faultbox/midgard-mesh/internal/engine/physics"
	"github.com/Faultbox/midgard-mesh/internal/engine/window"
	"github.com/Faultbox/midgard-mesh/internal/importer"
	"github.com/Faultbox/midgard-mesh/internal/logger"
)

// session owns the collaborators every command builds meshes with.
type session struct {
	cfg       *config.Config
	log       *zap.Logger
	dev       gpu.Device
	recorder  *headless.Device // nil on the GL backend
	gl        *glgpu.Device    // nil on the headless backend
	win       *window.Window
	instances *gpu.InstanceBatch
	physics   *physics.IndexedBackend
}

// parseArgs parses the shared flags plus whatever bind registers, loads the
// config and returns the mesh file argument.
func parseArgs(name string, args []string, bind func(fs *flag.FlagSet)) (*config.Config, string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	flags := config.BindFlags(fs)
	if bind != nil {
		bind(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}
	if fs.NArg() < 1 {
		return nil, "", fmt.Errorf("%w: meshtool %s <file.gltf>", errUsage, name)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return nil, "", fmt.Errorf("config: %w", err)
	}
	return cfg, fs.Arg(0), nil
}

func newSession(cfg *config.Config) (*session, error) {
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	s := &session{
		cfg:     cfg,
		log:     logger.Named("meshtool"),
		physics: &physics.IndexedBackend{},
	}

	switch cfg.GPU.Backend {
	case config.BackendGL:
		win, err := window.New(window.Config{
			Title:  "meshtool",
			Width:  cfg.GPU.Width,
			Height: cfg.GPU.Height,
			Hidden: true,
		})
		if err != nil {
			return nil, err
		}
		s.win = win
		s.gl = glgpu.New()
		s.dev = s.gl
	default:
		s.recorder = headless.New()
		s.dev = s.recorder
	}

	instances, err := gpu.NewInstanceBatch(s.dev, cfg.Mesh.MaxInstances)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.instances = instances

	s.log.Debug("session ready", zap.String("backend", cfg.GPU.Backend))
	return s, nil
}

func (s *session) env() mesh.Env {
	return mesh.Env{
		Device:    s.dev,
		Instances: s.instances,
		Physics:   s.physics,
		Collision: mesh.CollisionOptions{MirrorX: s.cfg.Mesh.MirrorPhysicsX},
		Logger:    logger.Named("mesh"),
	}
}

// load imports path and builds a mesh on the session device.
func (s *session) load(path string) (*mesh.Mesh, error) {
	data, err := importer.LoadGLTF(path, importer.Options{
		MeshIndex: s.cfg.Import.MeshIndex,
		FlipV:     s.cfg.Import.FlipV,
		Readable:  s.cfg.Mesh.Readable,
		Logger:    logger.Named("importer"),
	})
	if err != nil {
		return nil, err
	}
	m, err := mesh.New(s.env(), *data)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", path, err)
	}
	s.log.Info("mesh loaded",
		zap.String("file", path),
		zap.Int("vertices", m.VertexCount()),
		zap.Int("submeshes", m.SubMeshCount()))
	return m, nil
}

func (s *session) Close() {
	if s.instances != nil {
		s.instances.Destroy()
	}
	if s.win != nil {
		s.win.Close()
	}
	logger.Sync()
}

// open is parseArgs + newSession + load for commands working on one mesh.
func open(name string, args []string, bind func(fs *flag.FlagSet)) (*session, *mesh.Mesh, error) {
	cfg, path, err := parseArgs(name, args, bind)
	if err != nil {
		return nil, nil, err
	}
	s, err := newSession(cfg)
	if err != nil {
		return nil, nil, err
	}
	m, err := s.load(path)
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return s, m, nil
}
