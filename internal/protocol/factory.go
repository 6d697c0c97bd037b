// internal/protocol/factory.go
package protocol

import (
	"go.uber.org/zap"

	"labware-service/internal/model"
)

// New creates a connection for the given mode. Overrides are merged on top
// of the mode defaults before decoding; the connection is not opened.
func New(mode model.ConnectionMode, overrides Params, logger *zap.Logger) (Connection, error) {
	if !mode.Valid() {
		return nil, connectionError("unsupported connection mode: %q", mode)
	}

	cfg, err := DecodeConfig(MergeParams(DefaultParams(mode), overrides))
	if err != nil {
		return nil, wrapConnectionError(ErrConnection, err, "invalid %s connection parameters", mode)
	}

	switch mode {
	case model.ConnectionModeSerial:
		return NewSerialConnection(cfg, logger)
	case model.ConnectionModeTCPIP:
		return NewSocketConnection(cfg, logger)
	case model.ConnectionModeHTTP:
		return NewHTTPConnection(cfg, logger)
	case model.ConnectionModeUSB:
		return NewUSBConnection(cfg, logger)
	default:
		return nil, connectionError("unsupported connection mode: %q", mode)
	}
}

// ValidateParams checks that the options for a mode decode and carry every
// required field without opening anything
func ValidateParams(mode model.ConnectionMode, overrides Params) error {
	if !mode.Valid() {
		return connectionError("unsupported connection mode: %q", mode)
	}

	cfg, err := DecodeConfig(MergeParams(DefaultParams(mode), overrides))
	if err != nil {
		return wrapConnectionError(ErrConnection, err, "invalid %s connection parameters", mode)
	}

	switch mode {
	case model.ConnectionModeSerial:
		if err := cfg.require("port"); err != nil {
			return err
		}
		_, err = serialMode(cfg)
		return err
	case model.ConnectionModeTCPIP:
		return cfg.require("address", "port")
	case model.ConnectionModeHTTP:
		return cfg.require("address")
	case model.ConnectionModeUSB:
		return cfg.require("vendor_id", "product_id")
	}
	return nil
}
