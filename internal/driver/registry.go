// internal/driver/registry.go
package driver

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"labware-service/internal/model"
	"labware-service/internal/parser"
	"labware-service/internal/protocol"
	"labware-service/internal/task"
	"labware-service/pkg/driver"
)

// Instrument is a driver together with the pipeline it runs on
type Instrument interface {
	driver.LabDevice
	Base() *Device
}

// Settings describe one configured device
type Settings struct {
	Name       string
	Driver     string
	Mode       model.ConnectionMode
	Params     protocol.Params
	Simulation bool

	Framing driver.FramingOverrides

	// CommandTable is a YAML file; Commands are inline entries merged over it
	CommandTable     string
	Commands         map[string]driver.Command
	SimulatedReplies map[string]string

	MaxReplySize   int
	ReceiveRetries int
}

// Environment carries the shared collaborators every driver gets
type Environment struct {
	Parsers   *parser.Registry
	Observers []Observer
	TaskSink  task.Sink
	Logger    *zap.Logger
}

func (e Environment) parsers() *parser.Registry {
	if e.Parsers == nil {
		return parser.Default()
	}
	return e.Parsers
}

// Options builds pipeline options from settings and the driver's own
// framing, table and capabilities. Settings win over driver defaults.
func (e Environment) Options(s Settings, framing driver.Framing, table driver.Table, caps []model.Capability) (Options, error) {
	framing = framing.Merge(s.Framing)

	if s.CommandTable != "" {
		tf, err := LoadTableFile(s.CommandTable)
		if err != nil {
			return Options{}, err
		}
		if tf.Framing != nil {
			framing = framing.Merge(*tf.Framing)
		}
		fileTable, err := tf.Table(e.parsers())
		if err != nil {
			return Options{}, err
		}
		table = table.Merge(fileTable)
		for _, c := range tf.Capabilities {
			caps = append(caps, model.Capability(c))
		}
	}
	if len(s.Commands) > 0 {
		inline, err := driver.NewTable(s.Commands, e.parsers())
		if err != nil {
			return Options{}, err
		}
		table = table.Merge(inline)
	}

	return Options{
		Name:             s.Name,
		Driver:           s.Driver,
		Mode:             s.Mode,
		Params:           s.Params,
		Framing:          &framing,
		Commands:         table,
		Capabilities:     caps,
		Simulation:       s.Simulation,
		SimulatedReplies: s.SimulatedReplies,
		MaxReplySize:     s.MaxReplySize,
		ReceiveRetries:   s.ReceiveRetries,
		Parsers:          e.parsers(),
		Observers:        e.Observers,
		TaskSink:         e.TaskSink,
		Logger:           e.Logger,
	}, nil
}

// Factory creates a driver instance
type Factory func(s Settings, env Environment) (Instrument, error)

// Registry manages driver registration and creation
type Registry struct {
	drivers map[string]Factory
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewRegistry creates a new driver registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		drivers: make(map[string]Factory),
		logger:  logger,
	}
}

// Register registers a driver factory under name
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.drivers[name] = factory
	r.logger.Info("Driver registered", zap.String("driver", name))
}

// Create builds a driver instance for the settings
func (r *Registry) Create(s Settings, env Environment) (Instrument, error) {
	r.mu.RLock()
	factory, exists := r.drivers[s.Driver]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("no driver found for %q (device %s)", s.Driver, s.Name)
	}
	if env.Logger == nil {
		env.Logger = r.logger
	}
	return factory(s, env)
}

// ListDrivers returns the registered driver names in alphabetical order
func (r *Registry) ListDrivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsSupported checks if a driver is registered
func (r *Registry) IsSupported(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.drivers[name]
	return exists
}
