package config

import "flag"

// Flags holds the CLI overrides shared by every meshtool command.
type Flags struct {
	Config     string
	Debug      bool
	Backend    string
	Unreadable bool
}

// BindFlags registers the shared flags on fs.
func BindFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.Config, "config", "", "Path to config file")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.StringVar(&f.Backend, "backend", "", "GPU backend (headless, gl)")
	fs.BoolVar(&f.Unreadable, "unreadable", false, "Drop CPU copies after upload")
	return f
}

// apply applies CLI flag overrides to the config.
func (f *Flags) apply(cfg *Config) {
	if f == nil {
		return
	}
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.Backend != "" {
		cfg.GPU.Backend = f.Backend
	}
	if f.Unreadable {
		cfg.Mesh.Readable = false
	}
}
