// internal/driver/device.go
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"labware-service/internal/model"
	"labware-service/internal/parser"
	"labware-service/internal/protocol"
	"labware-service/internal/task"
	"labware-service/pkg/driver"
)

// DefaultPollInterval is how often WaitUntilReady re-checks the device
const DefaultPollInterval = 500 * time.Millisecond

// Observer is told about every command the pipeline executes
type Observer interface {
	ObserveCommand(record model.CommandRecord)
}

// Options configures a Device
type Options struct {
	Name   string
	Driver string

	// Connection is built from Mode and Params unless given
	Mode       model.ConnectionMode
	Params     protocol.Params
	Connection protocol.Connection

	// Framing defaults to CRLF-terminated text when nil
	Framing      *driver.Framing
	Commands     driver.Table
	Capabilities []model.Capability

	Simulation bool
	// SimulatedReplies are raw replies keyed by command table key
	SimulatedReplies map[string]string

	MaxReplySize   int
	ReceiveRetries int
	PollInterval   time.Duration

	// Formatter and ReplyParser default to the text or JSON variants
	// depending on the connection mode
	Formatter   MessageFormatter
	ReplyParser ReplyParser
	Parsers     *parser.Registry

	Observers []Observer
	TaskSink  task.Sink
	Logger    *zap.Logger
}

// Device is the generic command pipeline every driver builds on
type Device struct {
	name       string
	driverName string
	conn       protocol.Connection
	framing    driver.Framing
	table      driver.Table
	caps       []model.Capability

	formatter MessageFormatter
	replies   ReplyParser
	live      *LiveTransport
	sim       *SimulatedTransport

	simulation   atomic.Bool
	simConnected atomic.Bool
	connectedAt  atomic.Pointer[time.Time]
	lastErr      atomic.Pointer[string]

	lock         *deviceLock
	tasks        *task.Manager
	observers    []Observer
	idle         ReadyFunc
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewDevice builds the pipeline. The connection is created but not opened.
func NewDevice(opts Options) (*Device, error) {
	if opts.Name == "" {
		return nil, errors.New("device name is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("device", opts.Name), zap.String("driver", opts.Driver))

	conn := opts.Connection
	if conn == nil {
		var err error
		conn, err = protocol.New(opts.Mode, opts.Params, logger)
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", opts.Name, err)
		}
	}

	framing := driver.DefaultFraming()
	if opts.Framing != nil {
		framing = *opts.Framing
	}

	parsers := opts.Parsers
	if parsers == nil {
		parsers = parser.Default()
	}

	formatter, replies := opts.Formatter, opts.ReplyParser
	if conn.Mode() == model.ConnectionModeHTTP {
		if formatter == nil {
			formatter = JSONPathFormatter{Logger: logger}
		}
		if replies == nil {
			replies = JSONReplyParser{Parsers: parsers}
		}
	} else {
		if formatter == nil {
			formatter = TextFormatter{Framing: framing}
		}
		if replies == nil {
			replies = TextReplyParser{Framing: framing, Parsers: parsers}
		}
	}

	table := opts.Commands
	if table == nil {
		table = driver.Table{}
	}

	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	d := &Device{
		name:         opts.Name,
		driverName:   opts.Driver,
		conn:         conn,
		framing:      framing,
		table:        table,
		caps:         opts.Capabilities,
		formatter:    formatter,
		replies:      replies,
		live:         NewLiveTransport(conn, framing.ReplyTerminator, opts.MaxReplySize, opts.ReceiveRetries, logger),
		sim:          NewSimulatedTransport(cannedReplies(table, opts.SimulatedReplies), logger),
		lock:         newDeviceLock(),
		tasks:        task.NewManager(opts.Name, opts.TaskSink, logger),
		observers:    opts.Observers,
		pollInterval: pollInterval,
		logger:       logger,
	}
	d.idle = d.IsIdle
	d.simulation.Store(opts.Simulation)
	return d, nil
}

// cannedReplies re-keys simulated replies from table keys to wire names
func cannedReplies(table driver.Table, replies map[string]string) map[string]string {
	out := make(map[string]string, len(replies))
	for key, body := range replies {
		if cmd, ok := table[key]; ok {
			out[cmd.Name] = body
			continue
		}
		out[key] = body
	}
	return out
}

// Base returns the pipeline itself, for callers holding a driver
func (d *Device) Base() *Device { return d }

func (d *Device) Name() string                     { return d.name }
func (d *Device) DriverName() string               { return d.driverName }
func (d *Device) Connection() protocol.Connection  { return d.conn }
func (d *Device) Framing() driver.Framing          { return d.framing }
func (d *Device) Table() driver.Table              { return d.table }
func (d *Device) Capabilities() []model.Capability { return d.caps }
func (d *Device) Commands() []driver.Command       { return d.table.Commands() }
func (d *Device) Tasks() *task.Manager             { return d.tasks }
func (d *Device) Logger() *zap.Logger              { return d.logger }

// Simulation reports whether commands bypass the connection
func (d *Device) Simulation() bool {
	return d.simulation.Load()
}

// SetSimulation switches between the live and simulated transports
func (d *Device) SetSimulation(enabled bool) {
	if d.simulation.Swap(enabled) != enabled {
		d.logger.Info("Simulation mode changed", zap.Bool("simulation", enabled))
	}
}

func (d *Device) transport() Transport {
	if d.Simulation() {
		return d.sim
	}
	return d.live
}

// Connect opens the connection, or only pretends to in simulation
func (d *Device) Connect(ctx context.Context) error {
	if d.Simulation() {
		d.logger.Info("SIM :: Opened connection")
		d.simConnected.Store(true)
		d.markConnected()
		return nil
	}

	if err := d.conn.Open(ctx); err != nil {
		d.setLastError(err)
		return fmt.Errorf("%w: can't connect to device %s: %w", driver.ErrDevice, d.name, err)
	}
	d.markConnected()
	d.logger.Info("Device connected", zap.String("connection_mode", string(d.conn.Mode())))
	return nil
}

func (d *Device) markConnected() {
	now := time.Now()
	d.connectedAt.Store(&now)
	d.lastErr.Store(nil)
}

// Disconnect stops all background tasks, then closes the connection
func (d *Device) Disconnect() error {
	var result *multierror.Error
	if err := d.tasks.StopAll(); err != nil {
		result = multierror.Append(result, err)
	}

	d.connectedAt.Store(nil)
	if d.Simulation() {
		d.logger.Info("SIM :: Closed connection")
		d.simConnected.Store(false)
		return result.ErrorOrNil()
	}

	if err := d.conn.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("closing %s: %w", d.name, err))
	}
	d.logger.Info("Device disconnected")
	return result.ErrorOrNil()
}

// IsConnected reports whether the connection is open. Drivers override it
// with an identity check against the instrument.
func (d *Device) IsConnected() bool {
	if d.Simulation() {
		return d.simConnected.Load()
	}
	return d.conn.IsOpen()
}

// IsIdle has no generic answer; drivers override it
func (d *Device) IsIdle(ctx context.Context) (bool, error) {
	return d.IsConnected(), nil
}

// SetIdleCheck replaces the check WaitUntilReady and ExecuteWhenReady use
// when given none. Drivers pass their own IsIdle before the device is used.
func (d *Device) SetIdleCheck(check ReadyFunc) {
	if check != nil {
		d.idle = check
	}
}

func (d *Device) GetStatus(ctx context.Context) (interface{}, error) { return nil, nil }
func (d *Device) CheckErrors(ctx context.Context) error              { return nil }
func (d *Device) ClearErrors(ctx context.Context) error              { return nil }
func (d *Device) InitializeDevice(ctx context.Context) error         { return nil }

// Command looks a descriptor up in the table
func (d *Device) Command(key string) (driver.Command, error) {
	return d.table.Get(key)
}

// SendNamed sends the table entry stored under key
func (d *Device) SendNamed(ctx context.Context, key string, value interface{}) (interface{}, error) {
	cmd, err := d.table.Get(key)
	if err != nil {
		return nil, err
	}
	return d.Send(ctx, cmd, value)
}

// Send validates value, formats the message, and runs the exchange under
// the device lock. A nil value sends the bare command.
func (d *Device) Send(ctx context.Context, cmd driver.Command, value interface{}) (result interface{}, err error) {
	start := time.Now()
	simulated := d.Simulation()
	raw := value
	defer func() {
		d.observe(cmd, raw, result, simulated, time.Since(start), err)
	}()

	if value != nil {
		if value, err = cmd.CheckValue(value); err != nil {
			d.logger.Warn("Command rejected", zap.String("command", cmd.Name), zap.Error(err))
			return nil, err
		}
	}

	msg, err := d.formatter.Format(&cmd, value)
	if err != nil {
		return nil, err
	}

	if simulated {
		reply, err := d.sim.Exchange(ctx, &cmd, msg)
		if err != nil {
			return nil, err
		}
		if reply == nil {
			if !cmd.ExpectsReply() {
				return nil, nil
			}
			return d.sim.Value(&cmd, value), nil
		}
		return d.replies.Parse(&cmd, reply)
	}

	ctx, unlock, err := d.lock.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	d.logger.Debug("Sending command", zap.String("command", cmd.Name), zap.Stringer("message", msg))
	reply, err := d.live.Exchange(ctx, &cmd, msg)
	if err != nil {
		d.setLastError(err)
		return nil, err
	}
	if reply == nil {
		return nil, nil
	}

	result, err = d.replies.Parse(&cmd, reply)
	if err != nil {
		d.logger.Warn("Can't process device reply",
			zap.String("command", cmd.Name),
			zap.String("reply", reply.Body),
			zap.Error(err),
		)
		d.setLastError(err)
		return nil, err
	}
	return result, nil
}

// Lock holds the device lock for a multi-step sequence. Send calls made with
// the returned context do not block on it.
func (d *Device) Lock(ctx context.Context) (context.Context, func(), error) {
	return d.lock.acquire(ctx)
}

// ReadyFunc reports whether the device can accept the next action
type ReadyFunc func(ctx context.Context) (bool, error)

// WaitUntilReady holds the device lock and polls check until it passes.
// A nil check waits for the device to be idle.
func (d *Device) WaitUntilReady(ctx context.Context, check ReadyFunc) error {
	ctx, unlock, err := d.lock.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	return d.waitReady(ctx, check)
}

// ExecuteWhenReady waits for check to pass, then runs action, all under
// the device lock. action may call Send with the context it receives.
// A nil check waits for the device to be idle.
func (d *Device) ExecuteWhenReady(ctx context.Context, action func(ctx context.Context) error, check ReadyFunc) error {
	if action == nil {
		return driver.CommandError("device %s: nil action", d.name)
	}
	ctx, unlock, err := d.lock.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := d.waitReady(ctx, check); err != nil {
		return err
	}
	return action(ctx)
}

func (d *Device) waitReady(ctx context.Context, check ReadyFunc) error {
	if check == nil {
		check = d.idle
	}
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		ready, err := check(ctx)
		if err != nil {
			return err
		}
		if ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// StartCommandTask polls a table command every interval
func (d *Device) StartCommandTask(ctx context.Context, interval time.Duration, key string, value interface{}) (uuid.UUID, error) {
	cmd, err := d.table.Get(key)
	if err != nil {
		return uuid.Nil, err
	}
	// polls take the lock on their own even when started by a holder
	return d.tasks.Start(d.lock.detach(ctx), interval, key, func(ctx context.Context) (interface{}, error) {
		return d.Send(ctx, cmd, value)
	})
}

// Info reports the device state for the API
func (d *Device) Info() model.DeviceInfo {
	info := model.DeviceInfo{
		Name:           d.name,
		Driver:         d.driverName,
		ConnectionMode: d.conn.Mode(),
		Simulation:     d.Simulation(),
		Capabilities:   d.caps,
		Commands:       len(d.table),
		Tasks:          d.tasks.Count(),
		LastError:      d.lastErr.Load(),
		ConnectedAt:    d.connectedAt.Load(),
		Stats:          d.conn.Stats(),
	}

	switch {
	case info.Simulation:
		info.Status = model.DeviceStatusSimulated
	case d.conn.IsOpen() && info.LastError != nil:
		info.Status = model.DeviceStatusError
	case d.conn.IsOpen():
		info.Status = model.DeviceStatusOnline
	default:
		info.Status = model.DeviceStatusOffline
	}
	return info
}

func (d *Device) setLastError(err error) {
	msg := err.Error()
	d.lastErr.Store(&msg)
}

func (d *Device) observe(cmd driver.Command, value, result interface{}, simulated bool, elapsed time.Duration, err error) {
	if len(d.observers) == 0 {
		return
	}

	record := model.CommandRecord{
		ID:         uuid.New(),
		Device:     d.name,
		Command:    cmd.Name,
		Status:     commandStatus(simulated, err),
		DurationMs: int(elapsed.Milliseconds()),
		CreatedAt:  time.Now(),
	}
	if value != nil {
		v := driver.FormatValue(value)
		record.Value = &v
	}
	if result != nil {
		r := fmt.Sprint(result)
		record.Reply = &r
	}
	if err != nil {
		e := err.Error()
		record.ErrorMessage = &e
	}

	for _, o := range d.observers {
		o.ObserveCommand(record)
	}
}

func commandStatus(simulated bool, err error) model.CommandStatus {
	switch {
	case errors.Is(err, driver.ErrDeviceCommand):
		return model.CommandStatusRejected
	case errors.Is(err, protocol.ErrConnectionTimeout):
		return model.CommandStatusTimeout
	case err != nil:
		return model.CommandStatusFailed
	case simulated:
		return model.CommandStatusSimulated
	}
	return model.CommandStatusSuccess
}
