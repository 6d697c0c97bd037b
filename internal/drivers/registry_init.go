// internal/drivers/registry_init.go
package drivers

import (
	"go.uber.org/zap"

	"labware-service/internal/driver"
	"labware-service/internal/driver/buchi"
	"labware-service/internal/driver/generic"
	"labware-service/internal/driver/ika"
)

// RegisterDefaultDrivers registers all built-in instrument drivers
func RegisterDefaultDrivers(registry *driver.Registry, logger *zap.Logger) {
	registry.Register(ika.DriverName, ika.New)
	registry.Register(buchi.DriverName, buchi.New)

	// Any instrument described by a YAML command table
	registry.Register(generic.DriverName, generic.New)

	logger.Info("Instrument drivers registered", zap.Strings("drivers", registry.ListDrivers()))
}
