// internal/service/device_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"labware-service/internal/config"
	"labware-service/internal/driver"
	"labware-service/internal/model"
	"labware-service/internal/repository"
	"labware-service/internal/utils"
	pkgdriver "labware-service/pkg/driver"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrDeviceExists   = errors.New("device already loaded")
	ErrInvalidRequest = errors.New("invalid request")
)

// EventPublisher receives device events for live subscribers
type EventPublisher interface {
	Publish(event model.DeviceEvent)
}

// ConnectionRecorder tracks connection state changes
type ConnectionRecorder interface {
	RecordConnection(device string, connected bool, err error)
}

// CommandInfo is a command table entry together with its key
type CommandInfo struct {
	Key string `json:"key"`
	pkgdriver.Command
}

// ExecuteResult is the outcome of one command sent through the API
type ExecuteResult struct {
	Device    string        `json:"device"`
	Command   string        `json:"command"`
	Value     interface{}   `json:"value,omitempty"`
	Result    interface{}   `json:"result"`
	Simulated bool          `json:"simulated"`
	Duration  time.Duration `json:"duration"`
}

// DeviceService manages the configured instruments
type DeviceService struct {
	registry    *driver.Registry
	env         driver.Environment
	devices     *xsync.MapOf[string, driver.Instrument]
	configs     *xsync.MapOf[string, config.DeviceConfig]
	loggers     *xsync.MapOf[string, *utils.DeviceLogger]
	journal     repository.JournalRepository
	events      EventPublisher
	connections ConnectionRecorder
	logger      *utils.ServiceLogger
}

// NewDeviceService creates a new device service instance. events and
// connections may be nil. The service adds itself to the environment
// observers to log every executed command.
func NewDeviceService(
	registry *driver.Registry,
	env driver.Environment,
	journal repository.JournalRepository,
	events EventPublisher,
	connections ConnectionRecorder,
	logger *zap.Logger,
) *DeviceService {
	if env.Logger == nil {
		env.Logger = logger
	}
	ds := &DeviceService{
		registry:    registry,
		devices:     xsync.NewMapOf[string, driver.Instrument](),
		configs:     xsync.NewMapOf[string, config.DeviceConfig](),
		loggers:     xsync.NewMapOf[string, *utils.DeviceLogger](),
		journal:     journal,
		events:      events,
		connections: connections,
		logger:      utils.NewServiceLogger(logger, "device-service"),
	}
	env.Observers = append(slices.Clip(env.Observers), ds)
	ds.env = env
	return ds
}

// LoadDevices builds every configured device, connecting those marked
// auto_connect. A failing device does not prevent the others from loading.
func (ds *DeviceService) LoadDevices(ctx context.Context, devices []config.DeviceConfig) error {
	var result *multierror.Error

	for _, cfg := range devices {
		if err := ds.AddDevice(cfg); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if !cfg.AutoConnect {
			continue
		}
		if err := ds.Connect(ctx, cfg.Name); err != nil {
			result = multierror.Append(result, err)
		}
	}

	ds.logger.Info("Devices loaded",
		zap.Int("configured", len(devices)),
		zap.Int("loaded", ds.devices.Size()),
	)
	return result.ErrorOrNil()
}

// AddDevice builds a device from its configuration without connecting it
func (ds *DeviceService) AddDevice(cfg config.DeviceConfig) error {
	if _, exists := ds.devices.Load(cfg.Name); exists {
		return fmt.Errorf("%w: %s", ErrDeviceExists, cfg.Name)
	}

	inst, err := ds.registry.Create(cfg.Settings(), ds.env)
	if err != nil {
		ds.logger.Error("Failed to create device",
			zap.String("device", cfg.Name),
			zap.String("driver", cfg.Driver),
			zap.Error(err),
		)
		return fmt.Errorf("device %s: %w", cfg.Name, err)
	}

	base := inst.Base()
	ds.devices.Store(cfg.Name, inst)
	ds.configs.Store(cfg.Name, cfg)
	ds.loggers.Store(cfg.Name, utils.NewDeviceLogger(ds.logger.Logger, cfg.Name, base.DriverName(), base.Connection().Mode()))
	ds.logger.Info("Device created",
		zap.String("device", cfg.Name),
		zap.String("driver", cfg.Driver),
		zap.Bool("simulation", inst.Simulation()),
	)
	return nil
}

// GetDevice returns a loaded device
func (ds *DeviceService) GetDevice(name string) (driver.Instrument, error) {
	inst, ok := ds.devices.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
	}
	return inst, nil
}

// Info returns the status of one device
func (ds *DeviceService) Info(name string) (model.DeviceInfo, error) {
	inst, err := ds.GetDevice(name)
	if err != nil {
		return model.DeviceInfo{}, err
	}
	return inst.Base().Info(), nil
}

// ListDevices returns every device ordered by name
func (ds *DeviceService) ListDevices() []model.DeviceInfo {
	infos := make([]model.DeviceInfo, 0, ds.devices.Size())
	ds.devices.Range(func(_ string, inst driver.Instrument) bool {
		infos = append(infos, inst.Base().Info())
		return true
	})
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Connect opens the device connection, initializes the instrument and
// starts its configured polling tasks
func (ds *DeviceService) Connect(ctx context.Context, name string) error {
	inst, err := ds.GetDevice(name)
	if err != nil {
		return err
	}
	base := inst.Base()
	deviceLogger := ds.deviceLogger(name)

	if err := inst.Connect(ctx); err != nil {
		deviceLogger.LogConnection("connect", false, err)
		ds.recordConnection(name, false, err)
		ds.emit(model.EventDeviceError, name, model.JSONObject{"action": "connect", "error": err.Error()})
		return err
	}

	if err := inst.InitializeDevice(ctx); err != nil {
		deviceLogger.LogConnection("initialize", false, err)
		if derr := inst.Disconnect(); derr != nil {
			deviceLogger.Warn("Failed to close connection after initialization error", zap.Error(derr))
		}
		ds.recordConnection(name, false, err)
		ds.emit(model.EventDeviceError, name, model.JSONObject{"action": "initialize", "error": err.Error()})
		return fmt.Errorf("initializing %s: %w", name, err)
	}

	deviceLogger.LogConnection("connect", true, nil)
	ds.recordConnection(name, true, nil)
	ds.emit(model.EventDeviceConnected, name, model.JSONObject{
		"connection_mode": string(base.Connection().Mode()),
		"simulation":      inst.Simulation(),
	})

	return ds.startConfiguredTasks(ctx, name, base)
}

func (ds *DeviceService) startConfiguredTasks(ctx context.Context, name string, base *driver.Device) error {
	cfg, ok := ds.configs.Load(name)
	if !ok || len(cfg.Tasks) == 0 || base.Tasks().Count() > 0 {
		return nil
	}

	var result *multierror.Error
	for _, t := range cfg.Tasks {
		key := strings.ToUpper(t.Command)
		id, err := base.StartCommandTask(ctx, t.Interval, key, t.Value)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("task %s on %s: %w", key, name, err))
			continue
		}
		ds.emit(model.EventTaskStarted, name, model.JSONObject{
			"task_id":  id.String(),
			"command":  key,
			"interval": t.Interval.String(),
		})
	}
	return result.ErrorOrNil()
}

// Disconnect stops the device tasks and closes its connection
func (ds *DeviceService) Disconnect(ctx context.Context, name string) error {
	inst, err := ds.GetDevice(name)
	if err != nil {
		return err
	}
	deviceLogger := ds.deviceLogger(name)

	err = inst.Disconnect()
	deviceLogger.LogConnection("disconnect", err == nil, err)
	ds.recordConnection(name, false, nil)
	ds.emit(model.EventDeviceDisconnected, name, nil)
	return err
}

// SetSimulation switches a device between the live and simulated transports
func (ds *DeviceService) SetSimulation(name string, enabled bool) (model.DeviceInfo, error) {
	inst, err := ds.GetDevice(name)
	if err != nil {
		return model.DeviceInfo{}, err
	}
	if inst.Simulation() != enabled {
		inst.SetSimulation(enabled)
		ds.emit(model.EventSimulationChanged, name, model.JSONObject{"simulation": enabled})
	}
	return inst.Base().Info(), nil
}

// ListCommands returns the command table of a device ordered by key
func (ds *DeviceService) ListCommands(name string) ([]CommandInfo, error) {
	inst, err := ds.GetDevice(name)
	if err != nil {
		return nil, err
	}
	table := inst.Base().Table()
	keys := table.Keys()
	sort.Strings(keys)

	commands := make([]CommandInfo, 0, len(keys))
	for _, key := range keys {
		commands = append(commands, CommandInfo{Key: key, Command: table[key]})
	}
	return commands, nil
}

// Execute sends a table command to a device. value may be nil for
// commands without an argument.
func (ds *DeviceService) Execute(ctx context.Context, name, command string, value interface{}) (*ExecuteResult, error) {
	inst, err := ds.GetDevice(name)
	if err != nil {
		return nil, err
	}
	key := strings.ToUpper(command)

	start := time.Now()
	simulated := inst.Simulation()
	result, err := inst.SendNamed(ctx, key, value)
	elapsed := time.Since(start)

	if err != nil {
		ds.emit(model.EventCommandFailed, name, model.JSONObject{
			"command": key,
			"error":   err.Error(),
		})
		return nil, err
	}

	ds.emit(model.EventCommandCompleted, name, model.JSONObject{
		"command":     key,
		"result":      result,
		"duration_ms": elapsed.Milliseconds(),
	})
	return &ExecuteResult{
		Device:    name,
		Command:   key,
		Value:     value,
		Result:    result,
		Simulated: simulated,
		Duration:  elapsed,
	}, nil
}

// Journal lists executed commands
func (ds *DeviceService) Journal(ctx context.Context, filter *repository.JournalFilter) ([]*model.CommandRecord, int, error) {
	start := time.Now()
	records, total, err := ds.journal.List(ctx, filter)
	ds.logger.LogDatabaseQuery("journal.list", time.Since(start), err)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list journal: %w", err)
	}
	return records, total, nil
}

// Stats returns the connection counters of every device
func (ds *DeviceService) Stats() map[string]model.ConnectionStats {
	stats := make(map[string]model.ConnectionStats, ds.devices.Size())
	ds.devices.Range(func(name string, inst driver.Instrument) bool {
		stats[name] = inst.Base().Connection().Stats()
		return true
	})
	return stats
}

// Close disconnects every connected device
func (ds *DeviceService) Close() error {
	var result *multierror.Error
	ds.devices.Range(func(name string, inst driver.Instrument) bool {
		if inst.Base().Info().ConnectedAt == nil && inst.Base().Tasks().Count() == 0 {
			return true
		}
		if err := inst.Disconnect(); err != nil {
			result = multierror.Append(result, fmt.Errorf("device %s: %w", name, err))
		}
		ds.recordConnection(name, false, nil)
		return true
	})
	ds.logger.Info("All devices closed")
	return result.ErrorOrNil()
}

// ObserveCommand logs every command the device pipelines execute
func (ds *DeviceService) ObserveCommand(rec model.CommandRecord) {
	ds.deviceLogger(rec.Device).LogCommand(rec)
}

func (ds *DeviceService) deviceLogger(name string) *utils.DeviceLogger {
	if l, ok := ds.loggers.Load(name); ok {
		return l
	}
	return utils.NewDeviceLogger(ds.logger.Logger, name, "", "")
}

func (ds *DeviceService) recordConnection(name string, connected bool, err error) {
	if ds.connections != nil {
		ds.connections.RecordConnection(name, connected, err)
	}
}

func (ds *DeviceService) emit(eventType model.EventType, device string, data model.JSONObject) {
	if ds.events != nil {
		ds.events.Publish(model.NewDeviceEvent(eventType, device, data))
	}
}
