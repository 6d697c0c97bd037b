// pkg/driver/command.go
package driver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

// Check restricts an outgoing value to a range or to a set of values
type Check struct {
	Min    *float64      `json:"min,omitempty" yaml:"min,omitempty"`
	Max    *float64      `json:"max,omitempty" yaml:"max,omitempty"`
	Values []interface{} `json:"values,omitempty" yaml:"values,omitempty"`
}

// ParserFunc is a reply parser attached to a command directly
type ParserFunc func(reply string, args ...interface{}) (interface{}, error)

// ReplySpec describes what a command answers with
type ReplySpec struct {
	Type Kind `json:"type,omitempty" yaml:"type,omitempty"`
	// Parser names a registered parser; Func takes precedence when set
	Parser string        `json:"parser,omitempty" yaml:"parser,omitempty"`
	Func   ParserFunc    `json:"-" yaml:"-"`
	Args   []interface{} `json:"args,omitempty" yaml:"args,omitempty"`
}

// HasParser reports whether the reply goes through a parser before casting
func (r *ReplySpec) HasParser() bool {
	return r != nil && (r.Func != nil || r.Parser != "")
}

// Command is the static descriptor of one device command
type Command struct {
	Name  string     `json:"name" yaml:"name"`
	Type  Kind       `json:"type,omitempty" yaml:"type,omitempty"`
	Check *Check     `json:"check,omitempty" yaml:"check,omitempty"`
	Reply *ReplySpec `json:"reply,omitempty" yaml:"reply,omitempty"`

	// HTTP devices
	Method   string   `json:"method,omitempty" yaml:"method,omitempty"`
	Endpoint string   `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Path     []string `json:"path,omitempty" yaml:"path,omitempty"`

	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// ExpectsReply reports whether the device answers this command
func (c *Command) ExpectsReply() bool {
	return c.Reply != nil
}

// IsHTTP reports whether the command is addressed to a REST endpoint
func (c *Command) IsHTTP() bool {
	return c.Method != "" || c.Endpoint != ""
}

// ParserLookup resolves parser names used in descriptors
type ParserLookup interface {
	Has(name string) bool
}

// Validate checks the descriptor once, at registration time
func (c *Command) Validate(parsers ParserLookup) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: empty command name", ErrInvalidCommand)
	}
	if c.Type != "" && !c.Type.Valid() {
		return fmt.Errorf("%w: %s: unknown value type %q", ErrInvalidCommand, c.Name, c.Type)
	}

	if c.Check != nil {
		if c.Type == "" {
			return fmt.Errorf("%w: %s: check requires a value type", ErrInvalidCommand, c.Name)
		}
		if c.Check.Min != nil && c.Check.Max != nil && *c.Check.Min > *c.Check.Max {
			return fmt.Errorf("%w: %s: min %v is greater than max %v", ErrInvalidCommand, c.Name, *c.Check.Min, *c.Check.Max)
		}
		for _, v := range c.Check.Values {
			if _, err := c.Type.Cast(v); err != nil {
				return fmt.Errorf("%w: %s: allowed value %v is not %s: %v", ErrInvalidCommand, c.Name, v, c.Type, err)
			}
		}
	}

	if c.Reply != nil {
		if c.Reply.Type != "" && !c.Reply.Type.Valid() {
			return fmt.Errorf("%w: %s: unknown reply type %q", ErrInvalidCommand, c.Name, c.Reply.Type)
		}
		if c.Reply.Func == nil && c.Reply.Parser != "" && (parsers == nil || !parsers.Has(c.Reply.Parser)) {
			return fmt.Errorf("%w: %s: unknown parser %q", ErrInvalidCommand, c.Name, c.Reply.Parser)
		}
	}

	if c.IsHTTP() {
		switch strings.ToUpper(c.Method) {
		case http.MethodGet, http.MethodPut, http.MethodPost, http.MethodPatch, http.MethodDelete:
		default:
			return fmt.Errorf("%w: %s: unsupported HTTP method %q", ErrInvalidCommand, c.Name, c.Method)
		}
		if c.Endpoint == "" {
			return fmt.Errorf("%w: %s: HTTP command needs an endpoint", ErrInvalidCommand, c.Name)
		}
		if len(c.Path) == 0 {
			return fmt.Errorf("%w: %s: HTTP command needs a JSON path", ErrInvalidCommand, c.Name)
		}
	}
	return nil
}

// CheckValue casts value to the command's type and enforces its check
func (c *Command) CheckValue(value interface{}) (interface{}, error) {
	if c.Type == "" {
		return value, nil
	}

	cast, err := c.Type.Cast(value)
	if err != nil {
		return nil, CommandError("%s: can't cast %v to %s: %v", c.Name, value, c.Type, err)
	}
	if c.Check == nil {
		return cast, nil
	}

	if c.Check.Min != nil || c.Check.Max != nil {
		if c.Type == KindString || c.Type == KindBool {
			return nil, CommandError("%s: range check on non-numeric type %s", c.Name, c.Type)
		}
		num, err := ToDecimal(cast)
		if err != nil {
			return nil, CommandError("%s: %v", c.Name, err)
		}
		if c.Check.Min != nil && num.LessThan(decimal.NewFromFloat(*c.Check.Min)) {
			return nil, CommandError("%s: value %v below minimum %v", c.Name, cast, *c.Check.Min)
		}
		if c.Check.Max != nil && num.GreaterThan(decimal.NewFromFloat(*c.Check.Max)) {
			return nil, CommandError("%s: value %v above maximum %v", c.Name, cast, *c.Check.Max)
		}
	}

	if len(c.Check.Values) > 0 && !c.inValues(cast) {
		return nil, CommandError("%s: value %v not in %v", c.Name, cast, c.Check.Values)
	}
	return cast, nil
}

func (c *Command) inValues(cast interface{}) bool {
	for _, allowed := range c.Check.Values {
		v, err := c.Type.Cast(allowed)
		if err != nil {
			continue
		}
		if c.Type == KindDecimal {
			if v.(decimal.Decimal).Equal(cast.(decimal.Decimal)) {
				return true
			}
			continue
		}
		if v == cast {
			return true
		}
	}
	return false
}
