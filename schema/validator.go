// Package sightingschema validates raw kumamap API items before they
// are adapted into candidates. The API is third-party and has shifted
// shape before; validating up front turns a silent mis-parse into a
// counted, logged skip.
package sightingschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed sighting_item.schema.json
var sightingItemSchemaJSON string

// SightingItem is one raw item of the kumamap sightings API.
type SightingItem struct {
	Hidden      bool              `json:"hidden"`
	Type        string            `json:"type"`
	Timestamp   string            `json:"timestamp"`
	Location    SightingLocation  `json:"location"`
	Description map[string]string `json:"description"`
	SourceURLs  []string          `json:"sourceUrls"`
}

// SightingLocation carries the coordinate pair and the Japanese place
// names of an item. Lat/Lng are pointers so an absent coordinate is
// distinguishable from zero.
type SightingLocation struct {
	Lat *float64          `json:"lat"`
	Lng *float64          `json:"lng"`
	JP  SightingPlaceName `json:"jp"`
}

// SightingPlaceName is the Japanese place-name block of an item.
type SightingPlaceName struct {
	Prefecture string `json:"prefecture"`
	Locality   string `json:"locality"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateSightingItem checks one raw API item against the schema and
// unmarshals it.
func ValidateSightingItem(payload json.RawMessage) (*SightingItem, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode item JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize item JSON: %w", err)
	}

	var item SightingItem
	if err := json.Unmarshal(normalized, &item); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}

	return &item, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("sighting_item.schema.json", strings.NewReader(sightingItemSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("sighting_item.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(payload json.RawMessage) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return nil, err
	}
	return value, nil
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	if _, err := decoder.Token(); err != io.EOF {
		return fmt.Errorf("payload contains trailing data")
	}
	return nil
}
