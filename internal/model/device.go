// internal/model/device.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// ConnectionMode selects the transport a device talks over
type ConnectionMode string

const (
	ConnectionModeSerial ConnectionMode = "serial"
	ConnectionModeTCPIP  ConnectionMode = "tcpip"
	ConnectionModeHTTP   ConnectionMode = "http"
	ConnectionModeUSB    ConnectionMode = "usb"
)

// Valid reports whether the mode is one the factory can build
func (m ConnectionMode) Valid() bool {
	switch m {
	case ConnectionModeSerial, ConnectionModeTCPIP, ConnectionModeHTTP, ConnectionModeUSB:
		return true
	}
	return false
}

// DeviceStatus represents the current status of a device
type DeviceStatus string

const (
	DeviceStatusOnline     DeviceStatus = "ONLINE"
	DeviceStatusOffline    DeviceStatus = "OFFLINE"
	DeviceStatusError      DeviceStatus = "ERROR"
	DeviceStatusConnecting DeviceStatus = "CONNECTING"
	DeviceStatusSimulated  DeviceStatus = "SIMULATED"
)

// Capability names a controller interface a device implements
type Capability string

const (
	CapabilityTemperature Capability = "TEMPERATURE"
	CapabilityStirring    Capability = "STIRRING"
	CapabilityPressure    Capability = "PRESSURE"
	CapabilityRotation    Capability = "ROTATION"
	CapabilityDispensing  Capability = "DISPENSING"
	CapabilityValve       Capability = "VALVE"
)

// JSONObject type for PostgreSQL JSONB objects
type JSONObject map[string]interface{}

func (j *JSONObject) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONObject) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// DeviceInfo is the API view of a configured device
type DeviceInfo struct {
	Name           string          `json:"name"`
	Driver         string          `json:"driver"`
	ConnectionMode ConnectionMode  `json:"connection_mode"`
	Status         DeviceStatus    `json:"status"`
	Simulation     bool            `json:"simulation"`
	Capabilities   []Capability    `json:"capabilities"`
	Commands       int             `json:"commands"`
	Tasks          int             `json:"tasks"`
	LastError      *string         `json:"last_error,omitempty"`
	ConnectedAt    *time.Time      `json:"connected_at,omitempty"`
	Stats          ConnectionStats `json:"stats"`
}

// ConnectionStats provides transport-level counters
type ConnectionStats struct {
	BytesWritten int64     `json:"bytes_written"`
	BytesRead    int64     `json:"bytes_read"`
	Transmits    int64     `json:"transmits"`
	Replies      int64     `json:"replies"`
	StaleReplies int64     `json:"stale_replies"`
	Timeouts     int64     `json:"timeouts"`
	LastActivity time.Time `json:"last_activity"`
	IsOpen       bool      `json:"is_open"`
}
