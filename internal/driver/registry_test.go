package driver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"labware-service/internal/model"
	"labware-service/internal/parser"
	"labware-service/pkg/driver"
)

const sampleTable = `
framing:
  command_terminator: "\r"
  reply_terminator: "\r"
capabilities: [VALVE]
commands:
  GET_POSITION:
    name: "?P"
    reply: {type: int, parser: slicer, args: [1, null]}
  SET_POSITION:
    name: "P"
    type: int
    check: {min: 1, max: 6}
`

func writeTable(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "table.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseTableFile(t *testing.T) {
	tf, err := ParseTableFile([]byte(sampleTable))
	require.NoError(t, err)
	require.NotNil(t, tf.Framing)
	assert.Equal(t, "\r", *tf.Framing.CommandTerminator)
	assert.Equal(t, []string{"VALVE"}, tf.Capabilities)

	table, err := tf.Table(parser.Default())
	require.NoError(t, err)
	assert.Equal(t, []string{"GET_POSITION", "SET_POSITION"}, table.Keys())
	assert.Equal(t, 6.0, *table["SET_POSITION"].Check.Max)
	assert.Equal(t, []interface{}{1, nil}, table["GET_POSITION"].Reply.Args)

	_, err = ParseTableFile([]byte("commands: {}"))
	assert.ErrorIs(t, err, driver.ErrInvalidCommand)

	_, err = ParseTableFile([]byte("commands: ["))
	assert.Error(t, err)

	bad, err := ParseTableFile([]byte("commands:\n  X:\n    reply: {parser: nope}\n"))
	require.NoError(t, err)
	_, err = bad.Table(parser.Default())
	assert.ErrorIs(t, err, driver.ErrInvalidCommand)

	_, err = LoadTableFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRegistryCreate(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	registry.Register("table", func(s Settings, env Environment) (Instrument, error) {
		opts, err := env.Options(s, driver.DefaultFraming(), driver.Table{}, []model.Capability{model.CapabilityDispensing})
		if err != nil {
			return nil, err
		}
		return NewDevice(opts)
	})

	assert.True(t, registry.IsSupported("table"))
	assert.False(t, registry.IsSupported("other"))
	assert.Equal(t, []string{"table"}, registry.ListDrivers())

	inst, err := registry.Create(Settings{
		Name:         "valve",
		Driver:       "table",
		Mode:         model.ConnectionModeSerial,
		CommandTable: writeTable(t, sampleTable),
		Commands: map[string]driver.Command{
			"HOME": {Name: "H"},
		},
		Framing: driver.FramingOverrides{ArgsDelimiter: strPtr("")},
	}, Environment{})
	require.NoError(t, err)

	dev := inst.Base()
	assert.Equal(t, "valve", dev.Name())
	assert.Equal(t, []string{"GET_POSITION", "HOME", "SET_POSITION"}, dev.Table().Keys())
	assert.Equal(t, "\r", dev.Framing().CommandTerminator)
	assert.Equal(t, "", dev.Framing().ArgsDelimiter)
	assert.ElementsMatch(t, []model.Capability{model.CapabilityDispensing, model.CapabilityValve}, dev.Capabilities())
	assert.Equal(t, model.ConnectionModeSerial, dev.Connection().Mode())

	_, err = registry.Create(Settings{Name: "x", Driver: "missing"}, Environment{})
	assert.Error(t, err)
}

func strPtr(s string) *string { return &s }
