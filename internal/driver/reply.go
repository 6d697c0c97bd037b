// internal/driver/reply.go
package driver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"labware-service/internal/model"
	"labware-service/internal/parser"
	"labware-service/pkg/driver"
)

// ReplyParser turns a raw reply into the command's typed result
type ReplyParser interface {
	Parse(cmd *driver.Command, reply *model.Reply) (interface{}, error)
}

// TextReplyParser strips reply framing, then parses and casts the body
type TextReplyParser struct {
	Framing driver.Framing
	Parsers *parser.Registry
}

func (p TextReplyParser) Parse(cmd *driver.Command, reply *model.Reply) (interface{}, error) {
	if reply == nil {
		return nil, nil
	}
	body := parser.Stripper(reply.Body, p.Framing.ReplyPrefix, p.Framing.ReplyTerminator)
	return processReply(cmd, body, p.Parsers)
}

// JSONReplyParser walks a JSON reply along the command path before the
// usual parse and cast
type JSONReplyParser struct {
	Parsers *parser.Registry
}

func (p JSONReplyParser) Parse(cmd *driver.Command, reply *model.Reply) (interface{}, error) {
	if reply == nil {
		return nil, nil
	}
	if reply.ContentType != model.ContentTypeJSON {
		return nil, driver.ReplyError("%s: invalid content type %q in device reply", cmd.Name, reply.ContentType)
	}

	dec := json.NewDecoder(bytes.NewBufferString(reply.Body))
	dec.UseNumber()
	var tree interface{}
	if err := dec.Decode(&tree); err != nil {
		return nil, driver.ReplyError("%s: can't decode reply as JSON: %v", cmd.Name, err)
	}

	node := tree
	for i, key := range cmd.Path {
		obj, ok := node.(map[string]interface{})
		if !ok {
			return nil, driver.ReplyError("%s: %s is not an object in reply", cmd.Name, strings.Join(cmd.Path[:i], "."))
		}
		if node, ok = obj[key]; !ok {
			return nil, driver.ReplyError("%s: key %s missing from reply", cmd.Name, strings.Join(cmd.Path[:i+1], "."))
		}
	}

	if n, ok := node.(json.Number); ok {
		node = n.String()
	}
	return processReply(cmd, node, p.Parsers)
}

// processReply runs the command's parser on string values, then casts
func processReply(cmd *driver.Command, value interface{}, parsers *parser.Registry) (interface{}, error) {
	spec := cmd.Reply
	if spec == nil || value == nil {
		return value, nil
	}

	if text, ok := value.(string); ok && spec.HasParser() {
		if fn := resolveParser(spec, parsers); fn != nil {
			parsed, err := fn(text, spec.Args...)
			if err != nil {
				return nil, fmt.Errorf("%s: parsing reply %q: %w", cmd.Name, text, err)
			}
			value = parsed
		}
	}

	if spec.Type == "" {
		return value, nil
	}
	return CastReply(value, spec.Type)
}

// resolveParser returns nil when the parser is not defined, which means
// the value is used as is
func resolveParser(spec *driver.ReplySpec, parsers *parser.Registry) parser.Func {
	if spec.Func != nil {
		return parser.Func(spec.Func)
	}
	if parsers == nil {
		parsers = parser.Default()
	}
	fn, _ := parsers.Get(spec.Parser)
	return fn
}

// CastReply converts a parsed reply to kind. Structured values pass
// through untouched. "0" is false for bool and int goes through float,
// so "0.0" is 0.
func CastReply(value interface{}, kind driver.Kind) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	if raw, ok := value.([]byte); ok {
		value = string(raw)
	}
	switch reflect.ValueOf(value).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return value, nil
	}

	if text, ok := value.(string); ok {
		text = strings.TrimSpace(text)
		value = text
		if kind == driver.KindInt {
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, driver.ReplyError("can't cast %q to %s", text, kind)
			}
			value = f
		}
	}

	cast, err := kind.Cast(value)
	if err != nil {
		return nil, driver.ReplyError("can't cast %v to %s: %v", value, kind, err)
	}
	return cast, nil
}
