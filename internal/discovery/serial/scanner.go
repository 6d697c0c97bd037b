// internal/discovery/serial/scanner.go
package serial

import (
	"context"
	"fmt"
	"sort"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"labware-service/internal/discovery"
	"labware-service/internal/model"
)

// PortLister enumerates serial ports with their USB details
type PortLister func() ([]*enumerator.PortDetails, error)

// Scanner lists serial ports an instrument may be attached to
type Scanner struct {
	logger *zap.Logger
	list   PortLister
	known  *discovery.DeviceDatabase
}

// NewScanner creates a scanner over the system port list
func NewScanner(logger *zap.Logger) *Scanner {
	return NewScannerWithLister(logger, enumerator.GetDetailedPortsList)
}

// NewScannerWithLister creates a scanner over a custom port source
func NewScannerWithLister(logger *zap.Logger, list PortLister) *Scanner {
	return &Scanner{
		logger: logger.With(zap.String("scanner", "serial")),
		list:   list,
		known:  discovery.NewDeviceDatabase(),
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return "serial"
}

// IsAvailable is always true; an empty list is a valid result
func (s *Scanner) IsAvailable() bool {
	return true
}

// Scan lists the ports, identifying known USB-serial bridges
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ports, err := s.list()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}
	if len(ports) == 0 {
		s.logger.Info("No serial ports found")
		return []*discovery.DiscoveredDevice{}, nil
	}

	discovered := make([]*discovery.DiscoveredDevice, 0, len(ports))
	for _, port := range ports {
		d := &discovery.DiscoveredDevice{
			ConnectionMode: model.ConnectionModeSerial,
			Params:         map[string]interface{}{"port": port.Name},
			Description:    port.Product,
			SerialNumber:   port.SerialNumber,
		}
		if port.IsUSB {
			s.describeUSB(d, port)
		}
		discovered = append(discovered, d)
	}

	sort.Slice(discovered, func(i, j int) bool {
		return discovered[i].Params["port"].(string) < discovered[j].Params["port"].(string)
	})

	s.logger.Info("Serial scan completed", zap.Int("ports_found", len(discovered)))
	return discovered, nil
}

func (s *Scanner) describeUSB(d *discovery.DiscoveredDevice, port *enumerator.PortDetails) {
	vid, err := discovery.ParseID(port.VID)
	if err != nil {
		s.logger.Debug("Unreadable vendor id", zap.String("port", port.Name), zap.Error(err))
		return
	}
	pid, err := discovery.ParseID(port.PID)
	if err != nil {
		s.logger.Debug("Unreadable product id", zap.String("port", port.Name), zap.Error(err))
		return
	}
	s.known.Describe(d, vid, pid)
}
