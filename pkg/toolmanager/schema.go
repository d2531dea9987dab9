package toolmanager

import (
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

// Schema is the JSON-schema subset understood by the realtime backend.
type Schema struct {
	Type        string             `json:"type" yaml:"type"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty" yaml:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty" yaml:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty" yaml:"enum,omitempty"`
	Required    []string           `json:"required,omitempty" yaml:"required,omitempty"`
}

// Parameter defines one top-level argument of a declaration.
type Parameter struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Items       *Schema
	Enum        []string
}

var validTypes = map[string]bool{
	"string": true, "number": true, "boolean": true,
	"object": true, "array": true, "integer": true,
}

// Object builds an object schema from parameters. Required names keep the
// parameter order.
func Object(params ...Parameter) *Schema {
	s := &Schema{
		Type:       "object",
		Properties: make(map[string]*Schema, len(params)),
	}
	for _, p := range params {
		s.Properties[p.Name] = &Schema{
			Type:        p.Type,
			Description: p.Description,
			Items:       p.Items.Clone(),
			Enum:        append([]string(nil), p.Enum...),
		}
		if p.Required {
			s.Required = append(s.Required, p.Name)
		}
	}
	return s
}

// Clone returns a deep copy.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	c := &Schema{
		Type:        s.Type,
		Description: s.Description,
		Items:       s.Items.Clone(),
	}
	if s.Enum != nil {
		c.Enum = append([]string(nil), s.Enum...)
	}
	if s.Required != nil {
		c.Required = append([]string(nil), s.Required...)
	}
	if s.Properties != nil {
		c.Properties = make(map[string]*Schema, len(s.Properties))
		for k, v := range s.Properties {
			c.Properties[k] = v.Clone()
		}
	}
	return c
}

// validate checks the schema tree for types the backend would reject.
func (s *Schema) validate(path string) error {
	if s == nil {
		return nil
	}
	if !validTypes[s.Type] {
		return fmt.Errorf("invalid type %q at %s", s.Type, path)
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		prop := s.Properties[name]
		if prop == nil {
			return fmt.Errorf("nil schema at %s.%s", path, name)
		}
		if err := prop.validate(path + "." + name); err != nil {
			return err
		}
	}
	for _, req := range s.Required {
		if _, ok := s.Properties[req]; !ok {
			return fmt.Errorf("required property %q is not declared at %s", req, path)
		}
	}
	if s.Type == "array" && s.Items != nil {
		return s.Items.validate(path + "[]")
	}
	return nil
}

// toMap renders the schema as a plain map for gojsonschema.
func (s *Schema) toMap() map[string]any {
	m := map[string]any{"type": s.Type}
	if s.Description != "" {
		m["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		enum := make([]any, len(s.Enum))
		for i, v := range s.Enum {
			enum[i] = v
		}
		m["enum"] = enum
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, prop := range s.Properties {
			props[name] = prop.toMap()
		}
		m["properties"] = props
	}
	if len(s.Required) > 0 {
		req := make([]any, len(s.Required))
		for i, v := range s.Required {
			req[i] = v
		}
		m["required"] = req
	}
	if s.Items != nil {
		m["items"] = s.Items.toMap()
	}
	return m
}

// compile validates and compiles a declaration's parameters. A nil schema
// compiles to nil, which accepts any arguments.
func compile(s *Schema) (*gojsonschema.Schema, error) {
	if s == nil {
		return nil, nil
	}
	if err := s.validate("parameters"); err != nil {
		return nil, err
	}
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(s.toMap()))
}

// validateArgs checks args against a compiled schema.
func validateArgs(schema *gojsonschema.Schema, args map[string]any) error {
	if schema == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("validation errors: %v", errs)
	}
	return nil
}
