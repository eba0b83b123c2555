// Package events carries the AMQP side of the engine: the criteria-changed
// consumer, the notification publisher and the JSON schemas both sides are
// checked against.
package events

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed schemas
var schemaFS embed.FS

const schemaRoot = "schemas"

// ErrUnknownContract is returned for an event type/version pair with no schema.
var ErrUnknownContract = errors.New("unknown event contract")

// ErrInvalidEvent wraps schema violations and undecodable bodies.
var ErrInvalidEvent = errors.New("invalid event")

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

// Contracts returns the compiled schema registry keyed by "<Type>/<version>".
func Contracts() (map[string]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled, compileErr = compileSchemas(schemaFS)
	})
	return compiled, compileErr
}

func compileSchemas(fsys fs.FS) (map[string]*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true

	var paths []string
	err := fs.WalkDir(fsys, schemaRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		raw, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		if err := compiler.AddResource(path, bytes.NewReader(raw)); err != nil {
			return fmt.Errorf("add schema %s: %w", path, err)
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]*jsonschema.Schema, len(paths))
	for _, path := range paths {
		key := contractKey(path)
		if key == "" {
			return nil, fmt.Errorf("schema %s: unexpected layout", path)
		}
		schema, err := compiler.Compile(path)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", path, err)
		}
		out[key] = schema
	}
	return out, nil
}

// contractKey maps "schemas/buyer-criteria-changed/v1.json" to
// "BuyerCriteriaChangedEvent/1.0.0".
func contractKey(path string) string {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(path, schemaRoot+"/"), ".json")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || !strings.HasPrefix(parts[1], "v") {
		return ""
	}

	caser := cases.Title(language.English)
	var name strings.Builder
	for _, word := range strings.Split(parts[0], "-") {
		name.WriteString(caser.String(word))
	}
	name.WriteString("Event")

	return name.String() + "/" + strings.TrimPrefix(parts[1], "v") + ".0.0"
}

// Validate checks body against the schema registered for eventType/version.
func Validate(eventType, version string, body []byte) error {
	schemas, err := Contracts()
	if err != nil {
		return err
	}
	schema, ok := schemas[eventType+"/"+version]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrUnknownContract, eventType, version)
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return nil
}
