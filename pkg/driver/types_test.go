package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTable(t *testing.T) {
	table, err := NewTable(map[string]Command{
		"GET_TEMP": {Name: "IN_PV_1", Reply: &ReplySpec{Type: KindFloat}},
		"STOP_1":   {},
	}, parserSet{})
	require.NoError(t, err)

	assert.Equal(t, []string{"GET_TEMP", "STOP_1"}, table.Keys())

	cmd, err := table.Get("STOP_1")
	require.NoError(t, err)
	assert.Equal(t, "STOP_1", cmd.Name, "name defaults to the key")

	_, err = table.Get("LAUNCH")
	assert.ErrorIs(t, err, ErrUnknownCommand)

	_, err = NewTable(map[string]Command{"BAD": {Type: "list"}}, parserSet{})
	assert.ErrorIs(t, err, ErrInvalidCommand)
}

func TestTableMerge(t *testing.T) {
	base := Table{"A": {Name: "A"}, "B": {Name: "B"}}
	merged := base.Merge(Table{"B": {Name: "B2"}, "C": {Name: "C"}})

	assert.Equal(t, "B2", merged["B"].Name)
	assert.Len(t, merged, 3)
	assert.Equal(t, "B", base["B"].Name)
	assert.Len(t, merged.Commands(), 3)
}

func TestFramingMerge(t *testing.T) {
	empty := ""
	term := " \r \n"
	f := DefaultFraming().Merge(FramingOverrides{CommandTerminator: &term, ReplyTerminator: &empty})

	assert.Equal(t, " \r \n", f.CommandTerminator)
	assert.Equal(t, "", f.ReplyTerminator)
	assert.Equal(t, " ", f.ArgsDelimiter)
}
