// pkg/driver/interfaces.go
package driver

import (
	"context"

	"labware-service/internal/model"
)

// LabDevice is the interface every instrument driver implements
type LabDevice interface {
	// Connection management
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool

	// Device information
	Name() string
	Capabilities() []model.Capability
	Commands() []Command

	// Status
	IsIdle(ctx context.Context) (bool, error)
	GetStatus(ctx context.Context) (interface{}, error)
	CheckErrors(ctx context.Context) error
	ClearErrors(ctx context.Context) error

	// Lifecycle
	InitializeDevice(ctx context.Context) error

	// Generic command execution
	SendNamed(ctx context.Context, name string, value interface{}) (interface{}, error)

	// Simulation
	Simulation() bool
	SetSimulation(enabled bool)
}

// TemperatureController is implemented by hotplates, chillers and baths
type TemperatureController interface {
	SetTemperature(ctx context.Context, celsius float64) error
	GetTemperature(ctx context.Context) (float64, error)
	GetTemperatureSetpoint(ctx context.Context) (float64, error)
	StartTemperatureRegulation(ctx context.Context) error
	StopTemperatureRegulation(ctx context.Context) error
}

// Stirrer is implemented by devices with a magnetic or overhead stirrer
type Stirrer interface {
	SetSpeed(ctx context.Context, rpm int) error
	GetSpeed(ctx context.Context) (int, error)
	GetSpeedSetpoint(ctx context.Context) (int, error)
	StartStirring(ctx context.Context) error
	StopStirring(ctx context.Context) error
}

// PressureController is implemented by vacuum pumps and controllers
type PressureController interface {
	SetPressure(ctx context.Context, mbar float64) error
	GetPressure(ctx context.Context) (float64, error)
	StartPressureRegulation(ctx context.Context) error
	StopPressureRegulation(ctx context.Context) error
}

// Rotator is implemented by rotary evaporators
type Rotator interface {
	SetRotationSpeed(ctx context.Context, rpm int) error
	GetRotationSpeed(ctx context.Context) (int, error)
	StartRotation(ctx context.Context) error
	StopRotation(ctx context.Context) error
}
