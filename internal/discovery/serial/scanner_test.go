package serial

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"labware-service/internal/model"
)

func TestScan(t *testing.T) {
	s := NewScannerWithLister(zap.NewNop(), func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", SerialNumber: "A10K"},
			{Name: "/dev/ttyS0"},
			{Name: "/dev/ttyACM0", IsUSB: true, VID: "zz", PID: "0001"},
		}, nil
	})

	devices, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 3)

	acm, s0, usb0 := devices[0], devices[1], devices[2]
	assert.Equal(t, "/dev/ttyACM0", acm.Params["port"])
	assert.Empty(t, acm.VendorID)

	assert.Equal(t, model.ConnectionModeSerial, s0.ConnectionMode)
	assert.Empty(t, s0.Manufacturer)

	assert.Equal(t, "0x0403", usb0.VendorID)
	assert.Equal(t, "0x6001", usb0.ProductID)
	assert.Equal(t, "FT232R USB UART", usb0.Description)
	assert.Equal(t, "A10K", usb0.SerialNumber)
}

func TestScanErrors(t *testing.T) {
	s := NewScannerWithLister(zap.NewNop(), func() ([]*enumerator.PortDetails, error) {
		return nil, errors.New("no sysfs")
	})
	_, err := s.Scan(context.Background())
	assert.Error(t, err)

	empty := NewScannerWithLister(zap.NewNop(), func() ([]*enumerator.PortDetails, error) { return nil, nil })
	devices, err := empty.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, devices)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = empty.Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
