// internal/protocol/usb_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"

	"labware-service/internal/model"
)

// USBConnection talks to a device over a pair of USB bulk endpoints using
// the same listener model as the serial connection
type USBConnection struct {
	*streamConnection
}

// NewUSBConnection creates a USB connection; the device is claimed by Open
func NewUSBConnection(cfg Config, logger *zap.Logger) (*USBConnection, error) {
	logger = logger.With(
		zap.String("protocol", "usb"),
		zap.String("vendor_id", cfg.VendorID),
		zap.String("product_id", cfg.ProductID),
	)

	uc := &USBConnection{}
	opts := streamOptions{
		capBurst:      true,
		receiveWindow: cfg.ReceiveTimeout * 10,
		joinTimeout:   cfg.ReceivingInterval * 5,
	}
	stream, err := newStreamConnection(model.ConnectionModeUSB, cfg, logger, opts, uc.openDevice)
	if err != nil {
		return nil, err
	}
	uc.streamConnection = stream
	return uc, nil
}

func (uc *USBConnection) openDevice(ctx context.Context) (streamPort, error) {
	cfg := uc.cfg
	if err := cfg.require("vendor_id", "product_id"); err != nil {
		return nil, err
	}

	vendorID, err := ParseHexID(cfg.VendorID)
	if err != nil {
		return nil, connectionError("invalid vendor ID %q: %v", cfg.VendorID, err)
	}
	productID, err := ParseHexID(cfg.ProductID)
	if err != nil {
		return nil, connectionError("invalid product ID %q: %v", cfg.ProductID, err)
	}

	uc.logger.Info("Opening USB connection",
		zap.Int("interface", cfg.Interface),
		zap.Int("in_endpoint", cfg.InEndpoint),
		zap.Int("out_endpoint", cfg.OutEndpoint),
	)

	usbCtx := gousb.NewContext()
	device, err := usbCtx.OpenDeviceWithVIDPID(vendorID, productID)
	if err != nil {
		usbCtx.Close()
		return nil, wrapConnectionError(ErrConnection, err, "failed to open USB device %s:%s", vendorID, productID)
	}
	if device == nil {
		usbCtx.Close()
		return nil, connectionError("USB device not found (VID: %s, PID: %s)", vendorID, productID)
	}
	if err := device.SetAutoDetach(true); err != nil {
		uc.logger.Warn("Failed to enable kernel driver auto-detach", zap.Error(err))
	}

	configNum, err := device.ActiveConfigNum()
	if err != nil {
		device.Close()
		usbCtx.Close()
		return nil, wrapConnectionError(ErrConnection, err, "failed to read active USB configuration")
	}
	usbConfig, err := device.Config(configNum)
	if err != nil {
		device.Close()
		usbCtx.Close()
		return nil, wrapConnectionError(ErrConnection, err, "failed to claim USB configuration %d", configNum)
	}
	intf, err := usbConfig.Interface(cfg.Interface, 0)
	if err != nil {
		usbConfig.Close()
		device.Close()
		usbCtx.Close()
		return nil, wrapConnectionError(ErrConnection, err, "failed to claim USB interface %d", cfg.Interface)
	}

	release := func() error {
		intf.Close()
		usbConfig.Close()
		devErr := device.Close()
		ctxErr := usbCtx.Close()
		return errors.Join(devErr, ctxErr)
	}

	in, err := intf.InEndpoint(cfg.InEndpoint)
	if err != nil {
		release()
		return nil, wrapConnectionError(ErrConnection, err, "failed to get in endpoint %d", cfg.InEndpoint)
	}
	out, err := intf.OutEndpoint(cfg.OutEndpoint)
	if err != nil {
		release()
		return nil, wrapConnectionError(ErrConnection, err, "failed to get out endpoint %d", cfg.OutEndpoint)
	}

	uc.logger.Info("USB connection opened successfully")
	return &usbHandle{
		in:          in,
		out:         out,
		release:     release,
		readTimeout: pollTimeout(cfg.ReceivingInterval),
	}, nil
}

// ParseHexID parses a USB vendor or product ID written as 0x1234 or 1234
func ParseHexID(hexStr string) (gousb.ID, error) {
	hexStr = strings.TrimPrefix(strings.ToLower(hexStr), "0x")
	id, err := strconv.ParseUint(hexStr, 16, 16)
	if err != nil {
		return 0, err
	}
	return gousb.ID(id), nil
}

type usbReader interface {
	ReadContext(ctx context.Context, buf []byte) (int, error)
}

type usbWriter interface {
	Write(buf []byte) (int, error)
}

type usbHandle struct {
	in          usbReader
	out         usbWriter
	release     func() error
	readTimeout time.Duration
}

// readChunk treats an expired read deadline as "no data waiting"
func (h *usbHandle) readChunk(buf []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), h.readTimeout)
	defer cancel()

	n, err := h.in.ReadContext(ctx, buf)
	if err != nil && ctx.Err() != nil {
		return n, nil
	}
	if err != nil && errors.Is(err, gousb.TransferCancelled) {
		return n, nil
	}
	if err != nil {
		return n, wrapConnectionError(ErrConnection, err, "USB read failed")
	}
	return n, nil
}

func (h *usbHandle) write(data []byte) error {
	n, err := h.out.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}
	return nil
}

func (h *usbHandle) close() error {
	return h.release()
}
