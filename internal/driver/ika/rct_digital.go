// internal/driver/ika/rct_digital.go
package ika

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"labware-service/internal/driver"
	"labware-service/internal/model"
	"labware-service/internal/parser"
	"labware-service/internal/protocol"
	pkgdriver "labware-service/pkg/driver"
)

const (
	// DriverName is the registry key of this driver
	DriverName = "ika.rct_digital"

	// DefaultName is what the hotplate answers to IN_NAME
	DefaultName = "RCT digital"

	SensorInternal = 0
	SensorExternal = 1
)

//go:embed rct_digital.yaml
var tableYAML []byte

var loadTable = sync.OnceValues(func() (*driver.TableFile, error) {
	return driver.ParseTableFile(tableYAML)
})

// DefaultParams are the hotplate's fixed serial settings, 9600 7E1
func DefaultParams() protocol.Params {
	return protocol.Params{
		"baudrate": 9600,
		"bytesize": 7,
		"parity":   "even",
	}
}

// Framing terminates commands with " \r \n" and replies with "\r\n"
func Framing() pkgdriver.Framing {
	return pkgdriver.Framing{
		CommandTerminator: " \r \n",
		ArgsDelimiter:     " ",
		ReplyTerminator:   "\r\n",
	}
}

// Hotplate drives an IKA RCT digital. It has no status command, so the
// heater and stirrer track their own running state.
type Hotplate struct {
	*driver.Device
	*Heater
	*Stirrer
}

// New creates a hotplate from settings
func New(s driver.Settings, env driver.Environment) (driver.Instrument, error) {
	tf, err := loadTable()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", DriverName, err)
	}
	table, err := tf.Table(parser.Default())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", DriverName, err)
	}

	if s.Mode == "" {
		s.Mode = model.ConnectionModeSerial
	}
	s.Params = protocol.MergeParams(DefaultParams(), s.Params)

	caps := make([]model.Capability, 0, len(tf.Capabilities))
	for _, c := range tf.Capabilities {
		caps = append(caps, model.Capability(c))
	}
	opts, err := env.Options(s, Framing(), table, caps)
	if err != nil {
		return nil, err
	}
	dev, err := driver.NewDevice(opts)
	if err != nil {
		return nil, err
	}

	h := &Hotplate{
		Device:  dev,
		Heater:  &Heater{dev: dev},
		Stirrer: &Stirrer{dev: dev},
	}
	dev.SetIdleCheck(h.IsIdle)
	return h, nil
}

// InitializeDevice selects operation mode A and resets the controller
func (h *Hotplate) InitializeDevice(ctx context.Context) error {
	ctx, unlock, err := h.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := h.SendNamed(ctx, "SET_MODE_A", nil); err != nil {
		return err
	}
	if _, err := h.SendNamed(ctx, "RESET", nil); err != nil {
		return err
	}
	h.Logger().Info("Device initialized")
	return nil
}

// IsConnected asks the hotplate for its name
func (h *Hotplate) IsConnected() bool {
	return h.isConnected(context.Background())
}

// isConnected sends the identity check with ctx, so a lock holder can use it
func (h *Hotplate) isConnected(ctx context.Context) bool {
	if h.Simulation() {
		return true
	}
	reply, err := h.SendNamed(ctx, "GET_NAME", nil)
	if err != nil {
		if !errors.Is(err, protocol.ErrConnection) {
			h.Logger().Warn("Identity check failed", zap.Error(err))
		}
		return false
	}
	return reply == DefaultName
}

// IsIdle is true when connected and neither heating nor stirring
func (h *Hotplate) IsIdle(ctx context.Context) (bool, error) {
	if !h.isConnected(ctx) {
		return false, ctx.Err()
	}
	return !h.Heater.running.Load() && !h.Stirrer.running.Load(), nil
}

// GetViscosityTrend reads the viscosity trend value
func (h *Hotplate) GetViscosityTrend(ctx context.Context) (float64, error) {
	return sendFloat(ctx, h.Device, "GET_VISC")
}

// GetSafetyTemperature reads the safety circuit setpoint
func (h *Hotplate) GetSafetyTemperature(ctx context.Context) (float64, error) {
	return sendFloat(ctx, h.Device, "GET_SAFE_TEMP_SET")
}

// Heater is the temperature capability of the hotplate
type Heater struct {
	dev     *driver.Device
	running atomic.Bool
}

func (c *Heater) SetTemperature(ctx context.Context, celsius float64) error {
	_, err := c.dev.SendNamed(ctx, "SET_TEMP", celsius)
	return err
}

// GetTemperature reads the hotplate sensor
func (c *Heater) GetTemperature(ctx context.Context) (float64, error) {
	return c.GetSensorTemperature(ctx, SensorInternal)
}

// GetSensorTemperature reads the internal (0) or external (1) probe
func (c *Heater) GetSensorTemperature(ctx context.Context, sensor int) (float64, error) {
	switch sensor {
	case SensorInternal:
		return sendFloat(ctx, c.dev, "GET_TEMP")
	case SensorExternal:
		return sendFloat(ctx, c.dev, "GET_TEMP_EXT")
	}
	return 0, pkgdriver.CommandError("invalid sensor %d, allowed values are 0 (internal) and 1 (external)", sensor)
}

// GetTemperatureSetpoint reads the setpoint shared by both probes
func (c *Heater) GetTemperatureSetpoint(ctx context.Context) (float64, error) {
	return sendFloat(ctx, c.dev, "GET_TEMP_SET")
}

func (c *Heater) StartTemperatureRegulation(ctx context.Context) error {
	if _, err := c.dev.SendNamed(ctx, "START_HEAT", nil); err != nil {
		return err
	}
	c.running.Store(true)
	return nil
}

func (c *Heater) StopTemperatureRegulation(ctx context.Context) error {
	if _, err := c.dev.SendNamed(ctx, "STOP_HEAT", nil); err != nil {
		return err
	}
	c.running.Store(false)
	return nil
}

// Stirrer is the stirring capability of the hotplate
type Stirrer struct {
	dev     *driver.Device
	running atomic.Bool
}

func (c *Stirrer) SetSpeed(ctx context.Context, rpm int) error {
	_, err := c.dev.SendNamed(ctx, "SET_SPEED", rpm)
	return err
}

func (c *Stirrer) GetSpeed(ctx context.Context) (int, error) {
	v, err := sendFloat(ctx, c.dev, "GET_SPEED")
	return int(v), err
}

func (c *Stirrer) GetSpeedSetpoint(ctx context.Context) (int, error) {
	v, err := sendFloat(ctx, c.dev, "GET_SPEED_SET")
	return int(v), err
}

func (c *Stirrer) StartStirring(ctx context.Context) error {
	if _, err := c.dev.SendNamed(ctx, "START_STIR", nil); err != nil {
		return err
	}
	c.running.Store(true)
	return nil
}

func (c *Stirrer) StopStirring(ctx context.Context) error {
	if _, err := c.dev.SendNamed(ctx, "STOP_STIR", nil); err != nil {
		return err
	}
	c.running.Store(false)
	return nil
}

func sendFloat(ctx context.Context, dev *driver.Device, key string) (float64, error) {
	v, err := dev.SendNamed(ctx, key, nil)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, pkgdriver.ReplyError("%s: expected a float reply, got %T", key, v)
	}
	return f, nil
}

var (
	_ pkgdriver.LabDevice             = (*Hotplate)(nil)
	_ pkgdriver.TemperatureController = (*Hotplate)(nil)
	_ pkgdriver.Stirrer               = (*Hotplate)(nil)
)
