// pkg/driver/types.go
package driver

import (
	"fmt"
	"sort"
)

// Framing holds the text wrapped around commands and replies on the wire
type Framing struct {
	CommandPrefix     string `json:"command_prefix" yaml:"command_prefix" mapstructure:"command_prefix"`
	CommandTerminator string `json:"command_terminator" yaml:"command_terminator" mapstructure:"command_terminator"`
	ArgsDelimiter     string `json:"args_delimiter" yaml:"args_delimiter" mapstructure:"args_delimiter"`
	ReplyPrefix       string `json:"reply_prefix" yaml:"reply_prefix" mapstructure:"reply_prefix"`
	ReplyTerminator   string `json:"reply_terminator" yaml:"reply_terminator" mapstructure:"reply_terminator"`
}

// DefaultFraming is CRLF-terminated, space-delimited text
func DefaultFraming() Framing {
	return Framing{
		CommandTerminator: "\r\n",
		ArgsDelimiter:     " ",
		ReplyTerminator:   "\r\n",
	}
}

// Merge returns f with every non-nil override applied
func (f Framing) Merge(overrides FramingOverrides) Framing {
	if overrides.CommandPrefix != nil {
		f.CommandPrefix = *overrides.CommandPrefix
	}
	if overrides.CommandTerminator != nil {
		f.CommandTerminator = *overrides.CommandTerminator
	}
	if overrides.ArgsDelimiter != nil {
		f.ArgsDelimiter = *overrides.ArgsDelimiter
	}
	if overrides.ReplyPrefix != nil {
		f.ReplyPrefix = *overrides.ReplyPrefix
	}
	if overrides.ReplyTerminator != nil {
		f.ReplyTerminator = *overrides.ReplyTerminator
	}
	return f
}

// FramingOverrides distinguishes "not set" from an explicit empty string
type FramingOverrides struct {
	CommandPrefix     *string `json:"command_prefix,omitempty" yaml:"command_prefix,omitempty" mapstructure:"command_prefix"`
	CommandTerminator *string `json:"command_terminator,omitempty" yaml:"command_terminator,omitempty" mapstructure:"command_terminator"`
	ArgsDelimiter     *string `json:"args_delimiter,omitempty" yaml:"args_delimiter,omitempty" mapstructure:"args_delimiter"`
	ReplyPrefix       *string `json:"reply_prefix,omitempty" yaml:"reply_prefix,omitempty" mapstructure:"reply_prefix"`
	ReplyTerminator   *string `json:"reply_terminator,omitempty" yaml:"reply_terminator,omitempty" mapstructure:"reply_terminator"`
}

// Table is a device's command set keyed by a symbolic name
type Table map[string]Command

// NewTable validates every command and indexes it by key
func NewTable(commands map[string]Command, parsers ParserLookup) (Table, error) {
	table := make(Table, len(commands))
	for key, cmd := range commands {
		if cmd.Name == "" {
			cmd.Name = key
		}
		if err := cmd.Validate(parsers); err != nil {
			return nil, fmt.Errorf("command %s: %w", key, err)
		}
		table[key] = cmd
	}
	return table, nil
}

// Get looks a command up by key
func (t Table) Get(key string) (Command, error) {
	cmd, ok := t[key]
	if !ok {
		return Command{}, fmt.Errorf("%w: %s", ErrUnknownCommand, key)
	}
	return cmd, nil
}

// Keys lists the table keys in alphabetical order
func (t Table) Keys() []string {
	keys := make([]string, 0, len(t))
	for key := range t {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Commands returns the descriptors ordered by key
func (t Table) Commands() []Command {
	commands := make([]Command, 0, len(t))
	for _, key := range t.Keys() {
		commands = append(commands, t[key])
	}
	return commands
}

// Merge returns a copy of t with other's entries replacing same-key entries
func (t Table) Merge(other Table) Table {
	merged := make(Table, len(t)+len(other))
	for key, cmd := range t {
		merged[key] = cmd
	}
	for key, cmd := range other {
		merged[key] = cmd
	}
	return merged
}
