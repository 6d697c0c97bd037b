// internal/driver/generic/generic.go
package generic

import (
	"fmt"

	"labware-service/internal/driver"
	pkgdriver "labware-service/pkg/driver"
)

// DriverName is the registry key of this driver
const DriverName = "generic"

// New creates a device whose whole command table comes from settings,
// either a YAML file or inline commands
func New(s driver.Settings, env driver.Environment) (driver.Instrument, error) {
	if s.CommandTable == "" && len(s.Commands) == 0 {
		return nil, fmt.Errorf("%w: device %s: generic driver needs a command table", pkgdriver.ErrInvalidCommand, s.Name)
	}

	opts, err := env.Options(s, pkgdriver.DefaultFraming(), pkgdriver.Table{}, nil)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", s.Name, err)
	}
	dev, err := driver.NewDevice(opts)
	if err != nil {
		return nil, err
	}
	return dev, nil
}
