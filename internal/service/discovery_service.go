// internal/service/discovery_service.go
package service

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"labware-service/internal/config"
	"labware-service/internal/discovery"
	"labware-service/internal/discovery/serial"
	"labware-service/internal/discovery/usb"
	"labware-service/internal/driver"
	"labware-service/internal/utils"
)

// DiscoveryService lists the ports and USB devices instruments may be
// attached to
type DiscoveryService struct {
	registry       *driver.Registry
	scannerManager *discovery.ScannerManager
	logger         *utils.ServiceLogger
}

// NewDiscoveryService creates a discovery service with the scanners
// enabled in cfg
func NewDiscoveryService(registry *driver.Registry, cfg config.DiscoveryConfig, logger *zap.Logger) *DiscoveryService {
	ds := &DiscoveryService{
		registry:       registry,
		scannerManager: discovery.NewScannerManager(logger),
		logger:         utils.NewServiceLogger(logger, "discovery-service"),
	}

	if cfg.Serial {
		ds.scannerManager.RegisterScanner(serial.NewScanner(logger))
	}
	if cfg.USB {
		ds.scannerManager.RegisterScanner(usb.NewScanner(logger))
	}

	ds.logger.Info("Discovery scanners initialized",
		zap.Strings("available_scanners", ds.scannerManager.GetAvailableScanners()),
	)
	return ds
}

// NewDiscoveryServiceWithScanners creates a discovery service over the
// given scanners
func NewDiscoveryServiceWithScanners(registry *driver.Registry, logger *zap.Logger, scanners ...discovery.DeviceScanner) *DiscoveryService {
	ds := &DiscoveryService{
		registry:       registry,
		scannerManager: discovery.NewScannerManager(logger),
		logger:         utils.NewServiceLogger(logger, "discovery-service"),
	}
	for _, s := range scanners {
		ds.scannerManager.RegisterScanner(s)
	}
	return ds
}

// Scanners returns the available scanner types
func (ds *DiscoveryService) Scanners() []string {
	return ds.scannerManager.GetAvailableScanners()
}

// Scan runs one scanner, or every scanner when scanType is "all". A driver
// suggestion the registry does not know is cleared.
func (ds *DiscoveryService) Scan(ctx context.Context, scanType string) ([]*discovery.DiscoveredDevice, error) {
	ds.logger.Info("Starting device scan", zap.String("type", scanType))

	var devices []*discovery.DiscoveredDevice
	switch scanType {
	case "all", "":
		devices = ds.scannerManager.ScanAll(ctx)
	default:
		if !slices.Contains(ds.Scanners(), scanType) {
			return nil, fmt.Errorf("%w: scanner %q is not available", ErrInvalidRequest, scanType)
		}
		var err error
		devices, err = ds.scannerManager.ScanByType(ctx, scanType)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
	}

	for _, d := range devices {
		if d.Driver != "" && ds.registry != nil && !ds.registry.IsSupported(d.Driver) {
			d.Driver = ""
		}
	}
	if devices == nil {
		devices = []*discovery.DiscoveredDevice{}
	}

	ds.logger.Info("Device scan completed",
		zap.String("type", scanType),
		zap.Int("devices_found", len(devices)),
	)
	return devices, nil
}
