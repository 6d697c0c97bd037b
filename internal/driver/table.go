// internal/driver/table.go
package driver

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"labware-service/pkg/driver"
)

// TableFile is the YAML layout of a command table:
//
//	framing:
//	  command_terminator: "\r\n"
//	commands:
//	  GET_TEMP:
//	    name: IN_PV_1
//	    reply: {type: float, parser: slicer, args: [-2]}
type TableFile struct {
	Framing      *driver.FramingOverrides  `yaml:"framing,omitempty"`
	Capabilities []string                  `yaml:"capabilities,omitempty"`
	Commands     map[string]driver.Command `yaml:"commands"`
}

// ParseTableFile decodes a YAML command table
func ParseTableFile(data []byte) (*TableFile, error) {
	var tf TableFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parsing command table: %w", err)
	}
	if len(tf.Commands) == 0 {
		return nil, fmt.Errorf("%w: command table has no commands", driver.ErrInvalidCommand)
	}
	return &tf, nil
}

// LoadTableFile reads and decodes a YAML command table from disk
func LoadTableFile(path string) (*TableFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading command table: %w", err)
	}
	tf, err := ParseTableFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tf, nil
}

// Table validates the commands and indexes them
func (tf *TableFile) Table(parsers driver.ParserLookup) (driver.Table, error) {
	return driver.NewTable(tf.Commands, parsers)
}
