package provider

import (
	"sync"
	"time"

	"phobos.org.uk/foreman/internal/config"
	"phobos.org.uk/foreman/internal/logging"
	"phobos.org.uk/foreman/internal/metrics"
)

// Options configure the providers built by a registry.
type Options struct {
	Logger        *logging.Logger
	SessionLogDir string
	KillGrace     time.Duration
	// Binaries and Models override per-type defaults.
	Binaries map[Type]string
	Models   map[Type]string
	Metrics  *metrics.Metrics
}

// OptionsFromConfig maps service configuration onto registry options.
func OptionsFromConfig(cfg *config.Config, log *logging.Logger, m *metrics.Metrics) Options {
	opts := Options{
		Logger:        log,
		SessionLogDir: cfg.SessionLogDir,
		KillGrace:     cfg.KillGrace,
		Binaries:      make(map[Type]string),
		Models:        make(map[Type]string),
		Metrics:       m,
	}
	for _, t := range allTypes {
		if bin := cfg.Binary(string(t)); bin != "" {
			opts.Binaries[t] = bin
		}
		if model := cfg.Model(string(t)); model != "" {
			opts.Models[t] = model
		}
	}
	return opts
}

func newDialect(t Type) dialect {
	switch t {
	case TypeCodex:
		return codexDialect{}
	case TypeGemini:
		return geminiDialect{}
	case TypeOpenCode:
		return opencodeDialect{}
	case TypeCursor:
		return cursorDialect{}
	case TypeAider:
		return aiderDialect{}
	case TypeCopilot:
		return copilotDialect{}
	case TypeAmp:
		return ampDialect{}
	case TypeQwen:
		return qwenDialect{}
	default:
		return claudeDialect{}
	}
}

// Registry maps provider types to ready providers. It is read-only once built.
type Registry struct {
	providers map[Type]Provider
}

// NewRegistry builds one provider per supported type.
func NewRegistry(opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = logging.Discard("provider")
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = config.DefaultKillGrace
	}
	providers := make(map[Type]Provider, len(allTypes))
	for _, t := range allTypes {
		providers[t] = &cliProvider{
			typ:       t,
			d:         newDialect(t),
			binary:    opts.Binaries[t],
			model:     opts.Models[t],
			log:       opts.Logger,
			logDir:    opts.SessionLogDir,
			killGrace: opts.KillGrace,
			metrics:   opts.Metrics,
		}
	}
	return &Registry{providers: providers}
}

// Get returns the provider for t, falling back to claude for unknown types.
func (r *Registry) Get(t Type) Provider {
	if p, ok := r.providers[t]; ok {
		return p
	}
	return r.providers[TypeClaude]
}

// Types lists every supported provider type.
func (r *Registry) Types() []Type {
	return Types()
}

// Types lists every supported provider type.
func Types() []Type {
	out := make([]Type, len(allTypes))
	copy(out, allTypes)
	return out
}

// Default returns a process-wide registry built from environment defaults.
var Default = sync.OnceValue(func() *Registry {
	return NewRegistry(Options{
		SessionLogDir: config.DefaultSessionLogPath(),
		Metrics:       metrics.Default(),
	})
})
