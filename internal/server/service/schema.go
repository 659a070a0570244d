package service

import (
	"fmt"
	"strings"

	"confhub/internal/types"
	"confhub/internal/value"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const defaultSchemaCacheSize = 512

// schemaValidator compiles config schemas and caches them by source
type schemaValidator struct {
	compiled *lru.Cache[string, *jsonschema.Schema]
}

func newSchemaValidator(size int) (*schemaValidator, error) {
	cache, err := lru.New[string, *jsonschema.Schema](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema cache: %w", err)
	}
	return &schemaValidator{compiled: cache}, nil
}

// compile returns the compiled schema or a bad request error
func (v *schemaValidator) compile(schema value.Value) (*jsonschema.Schema, error) {
	source := schema.String()
	if compiled, ok := v.compiled.Get(source); ok {
		return compiled, nil
	}

	const resource = "inmemory://config-schema.json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resource, strings.NewReader(source)); err != nil {
		return nil, types.WrapBadRequest(err, "invalid schema")
	}
	compiled, err := compiler.Compile(resource)
	if err != nil {
		return nil, types.WrapBadRequest(err, "invalid schema")
	}

	v.compiled.Add(source, compiled)
	return compiled, nil
}

// validate checks val against schema. A nil schema accepts everything.
func (v *schemaValidator) validate(schema *value.Value, val value.Value, what string) error {
	if schema == nil || schema.IsNull() {
		return nil
	}
	compiled, err := v.compile(*schema)
	if err != nil {
		return err
	}
	if err := compiled.Validate(val.Interface()); err != nil {
		return types.WrapBadRequest(err, what+" does not match the schema")
	}
	return nil
}

// validateVariant checks a base value and every override value against schema
func (v *schemaValidator) validateVariant(schema *value.Value, base value.Value, overrides []types.Override, where string) error {
	if err := v.validate(schema, base, where+" value"); err != nil {
		return err
	}
	for _, o := range overrides {
		if err := v.validate(schema, o.Value, fmt.Sprintf("%s override %q", where, o.Name)); err != nil {
			return err
		}
	}
	return nil
}
