// internal/driver/buchi/r300.go
package buchi

import (
	"context"
	_ "embed"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"labware-service/internal/driver"
	"labware-service/internal/model"
	"labware-service/internal/parser"
	"labware-service/internal/protocol"
	pkgdriver "labware-service/pkg/driver"
)

const (
	// DriverName is the registry key of this driver
	DriverName = "buchi.r300"

	// DefaultSystemLine is what GET_SYSTEMLINE returns on a genuine R-300
	DefaultSystemLine = "R-300"

	ModeManual    = "Manual"
	ModeTimer     = "Timer"
	ModeSolvent   = "Solvent"
	ModeMethod    = "Method"
	ModeCloudDest = "CloudDest"
)

//go:embed r300.yaml
var tableYAML []byte

var loadTable = sync.OnceValues(func() (*driver.TableFile, error) {
	return driver.ParseTableFile(tableYAML)
})

// DefaultParams reach the rotavap over HTTPS with its self-signed certificate
func DefaultParams() protocol.Params {
	return protocol.Params{
		"schema":     "https",
		"verify_ssl": false,
		"headers":    map[string]interface{}{"Content-Type": "application/json"},
	}
}

// Rotavap drives a Buchi R-300 through the OpenInterface REST API
type Rotavap struct {
	*driver.Device
	*Bath
	*Vacuum
	*Rotation
}

// New creates a rotavap from settings
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
		s.Mode = model.ConnectionModeHTTP
	}
	s.Params = protocol.MergeParams(DefaultParams(), s.Params)

	caps := make([]model.Capability, 0, len(tf.Capabilities))
	for _, c := range tf.Capabilities {
		caps = append(caps, model.Capability(c))
	}
	// replies are bare JSON documents
	opts, err := env.Options(s, pkgdriver.Framing{}, table, caps)
	if err != nil {
		return nil, err
	}
	dev, err := driver.NewDevice(opts)
	if err != nil {
		return nil, err
	}

	r := &Rotavap{
		Device:   dev,
		Bath:     &Bath{dev: dev},
		Vacuum:   &Vacuum{dev: dev},
		Rotation: &Rotation{dev: dev},
	}
	dev.SetIdleCheck(r.IsIdle)
	return r, nil
}

// IsConnected checks the system line reported by the instrument
func (r *Rotavap) IsConnected() bool {
	return r.isConnected(context.Background())
}

func (r *Rotavap) isConnected(ctx context.Context) bool {
	if r.Simulation() {
		return true
	}
	line, err := r.SendNamed(ctx, "GET_SYSTEMLINE", nil)
	if err != nil {
		r.Logger().Warn("Identity check failed", zap.Error(err))
		return false
	}
	return line == DefaultSystemLine
}

// IsIdle is true when no process is running
func (r *Rotavap) IsIdle(ctx context.Context) (bool, error) {
	running, err := r.SendNamed(ctx, "GET_GLOBALSTATUS_RUNNING", nil)
	if err != nil {
		return false, err
	}
	busy, ok := running.(bool)
	return ok && !busy, nil
}

// GetStatus returns the selected program
func (r *Rotavap) GetStatus(ctx context.Context) (interface{}, error) {
	return r.GetMode(ctx)
}

// CheckErrors turns a non-zero current error code into an error
func (r *Rotavap) CheckErrors(ctx context.Context) error {
	code, err := r.SendNamed(ctx, "GET_GLOBALSTATUS_CURRENTERROR", nil)
	if err != nil {
		return err
	}
	if n, ok := code.(int64); ok && n != 0 {
		return pkgdriver.InternalError("rotavap reports error code %d", n)
	}
	return nil
}

// Start runs the selected program
func (r *Rotavap) Start(ctx context.Context) error {
	_, err := r.SendNamed(ctx, "SET_GLOBALSTATUS_RUNNING", true)
	return err
}

// Stop lifts the flask out, stops the program and the chiller
func (r *Rotavap) Stop(ctx context.Context) error {
	ctx, unlock, err := r.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.LiftUp(ctx); err != nil {
		return err
	}
	if _, err := r.SendNamed(ctx, "SET_GLOBALSTATUS_RUNNING", false); err != nil {
		return err
	}
	return r.StopChiller(ctx)
}

func (r *Rotavap) GetMode(ctx context.Context) (string, error) {
	mode, err := r.SendNamed(ctx, "GET_MODE", nil)
	if err != nil {
		return "", err
	}
	s, _ := mode.(string)
	return s, nil
}

func (r *Rotavap) SetMode(ctx context.Context, mode string) error {
	_, err := r.SendNamed(ctx, "SET_MODE", mode)
	return err
}

// ensureMode switches program if needed; program parameters only apply
// to the selected program
func (r *Rotavap) ensureMode(ctx context.Context, mode string) error {
	current, err := r.GetMode(ctx)
	if err != nil {
		return err
	}
	if current == mode {
		return nil
	}
	if err := r.SetMode(ctx, mode); err != nil {
		return err
	}
	r.Logger().Info("Switched program", zap.String("from", current), zap.String("to", mode))
	return nil
}

// programValue reads a program parameter, or nil when another program is
// selected and the parameter is absent from the reply
func (r *Rotavap) programValue(ctx context.Context, mode, key string) (interface{}, error) {
	current, err := r.GetMode(ctx)
	if err != nil {
		return nil, err
	}
	if current != mode {
		r.Logger().Warn("Program parameter unavailable, program not selected",
			zap.String("command", key),
			zap.String("required", mode),
			zap.String("selected", current),
		)
		return nil, nil
	}
	return r.SendNamed(ctx, key, nil)
}

// SetTimerTime selects the Timer program and sets its duration in seconds
func (r *Rotavap) SetTimerTime(ctx context.Context, seconds int) error {
	ctx, unlock, err := r.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.ensureMode(ctx, ModeTimer); err != nil {
		return err
	}
	_, err = r.SendNamed(ctx, "SET_TIMER_TIME", seconds)
	return err
}

func (r *Rotavap) GetTimerRemainingTime(ctx context.Context) (interface{}, error) {
	return r.programValue(ctx, ModeTimer, "GET_TIMER_REMAINING_TIME")
}

// SetSolventName selects the Solvent program and a library solvent. The
// instrument silently ignores unknown names, so the choice is read back.
func (r *Rotavap) SetSolventName(ctx context.Context, solvent string) error {
	ctx, unlock, err := r.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.ensureMode(ctx, ModeSolvent); err != nil {
		return err
	}
	if _, err := r.SendNamed(ctx, "SET_SOLVENT_NAME", solvent); err != nil {
		return err
	}
	got, err := r.programValue(ctx, ModeSolvent, "GET_SOLVENT_NAME")
	if err != nil {
		return err
	}
	if got != solvent && !r.Simulation() {
		return pkgdriver.CommandError("solvent %q was not recognised by the instrument", solvent)
	}
	return nil
}

// LiftUp moves the flask to the top position
func (r *Rotavap) LiftUp(ctx context.Context) error {
	cmd, err := r.Command("SET_LIFT_SET")
	if err != nil {
		return err
	}
	top := 0.0
	if cmd.Check != nil && cmd.Check.Min != nil {
		top = *cmd.Check.Min
	}
	_, err = r.Send(ctx, cmd, top)
	return err
}

// LiftDown lowers the flask to its bottom limit
func (r *Rotavap) LiftDown(ctx context.Context) error {
	ctx, unlock, err := r.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	limit, err := sendFloat(ctx, r.Device, "GET_LIFT_LIMIT")
	if err != nil {
		return err
	}
	_, err = r.SendNamed(ctx, "SET_LIFT_SET", limit)
	return err
}

func (r *Rotavap) GetLiftPosition(ctx context.Context) (float64, error) {
	return sendFloat(ctx, r.Device, "GET_LIFT_ACT")
}

func (r *Rotavap) StartChiller(ctx context.Context) error {
	_, err := r.SendNamed(ctx, "SET_COOLING_RUNNING", true)
	return err
}

func (r *Rotavap) StopChiller(ctx context.Context) error {
	_, err := r.SendNamed(ctx, "SET_COOLING_RUNNING", false)
	return err
}

func (r *Rotavap) SetChillerTemperature(ctx context.Context, celsius float64) error {
	_, err := r.SendNamed(ctx, "SET_COOLING_SET", celsius)
	return err
}

func (r *Rotavap) GetChillerTemperature(ctx context.Context) (float64, error) {
	return sendFloat(ctx, r.Device, "GET_COOLING_ACT")
}

// Bath is the heating bath of the rotavap
type Bath struct {
	dev *driver.Device
}

func (b *Bath) SetTemperature(ctx context.Context, celsius float64) error {
	_, err := b.dev.SendNamed(ctx, "SET_HEATING_SET", celsius)
	return err
}

func (b *Bath) GetTemperature(ctx context.Context) (float64, error) {
	return sendFloat(ctx, b.dev, "GET_HEATING_ACT")
}

func (b *Bath) GetTemperatureSetpoint(ctx context.Context) (float64, error) {
	return sendFloat(ctx, b.dev, "GET_HEATING_SET")
}

func (b *Bath) StartTemperatureRegulation(ctx context.Context) error {
	_, err := b.dev.SendNamed(ctx, "SET_HEATING_RUNNING", true)
	return err
}

func (b *Bath) StopTemperatureRegulation(ctx context.Context) error {
	_, err := b.dev.SendNamed(ctx, "SET_HEATING_RUNNING", false)
	return err
}

// Vacuum is the pump controller. Regulation follows the global program
// and cannot be toggled on its own.
type Vacuum struct {
	dev *driver.Device
}

func (v *Vacuum) SetPressure(ctx context.Context, mbar float64) error {
	_, err := v.dev.SendNamed(ctx, "SET_VACUUM_SET", mbar)
	return err
}

func (v *Vacuum) GetPressure(ctx context.Context) (float64, error) {
	if v.dev.Simulation() {
		return 1013.25, nil
	}
	return sendFloat(ctx, v.dev, "GET_VACUUM_ACT")
}

func (v *Vacuum) StartPressureRegulation(ctx context.Context) error {
	v.dev.Logger().Warn("Pressure regulation can only be started together with the program, use Start")
	return nil
}

func (v *Vacuum) StopPressureRegulation(ctx context.Context) error {
	v.dev.Logger().Warn("Pressure regulation can only be stopped together with the program, use Stop")
	return nil
}

// Rotation is the flask drive
type Rotation struct {
	dev *driver.Device
}

func (r *Rotation) SetRotationSpeed(ctx context.Context, rpm int) error {
	_, err := r.dev.SendNamed(ctx, "SET_ROTATION_SET", rpm)
	return err
}

func (r *Rotation) GetRotationSpeed(ctx context.Context) (int, error) {
	v, err := sendFloat(ctx, r.dev, "GET_ROTATION_ACT")
	return int(v), err
}

func (r *Rotation) StartRotation(ctx context.Context) error {
	_, err := r.dev.SendNamed(ctx, "SET_ROTATION_RUNNING", true)
	return err
}

func (r *Rotation) StopRotation(ctx context.Context) error {
	_, err := r.dev.SendNamed(ctx, "SET_ROTATION_RUNNING", false)
	return err
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
	_ pkgdriver.LabDevice             = (*Rotavap)(nil)
	_ pkgdriver.TemperatureController = (*Rotavap)(nil)
	_ pkgdriver.PressureController    = (*Rotavap)(nil)
	_ pkgdriver.Rotator               = (*Rotavap)(nil)
)
