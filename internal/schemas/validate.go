// Package schemas checks classifier verdicts and stored run summaries against
// embedded JSON Schemas.
package schemas

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Embedded schema names
const (
	Verdict      = "verdict.schema.json"
	IngestionRun = "ingestion_run.schema.json"
)

//go:embed *.schema.json
var schemaFiles embed.FS

// Violation is one failed constraint at a document path.
type Violation struct {
	Field   string
	Message string
}

// ValidationError lists every constraint a document broke.
type ValidationError struct {
	Schema     string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Field + ": " + v.Message
	}
	return fmt.Sprintf("document does not match %s: %s", e.Schema, strings.Join(parts, "; "))
}

// LoadError reports a schema that could not be compiled or a document that is not JSON.
type LoadError struct {
	Schema string
	Cause  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("schema %s: %v", e.Schema, e.Cause)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

var (
	mu       sync.Mutex
	compiled = make(map[string]*gojsonschema.Schema)
)

// Validate checks a JSON document against the named embedded schema.
func Validate(name string, document []byte) error {
	schema, err := load(name)
	if err != nil {
		return err
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return &LoadError{Schema: name, Cause: err}
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{Schema: name}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		verr.Violations = append(verr.Violations, Violation{Field: field, Message: desc.Description()})
	}
	return verr
}

// load compiles a schema on first use.
func load(name string) (*gojsonschema.Schema, error) {
	mu.Lock()
	defer mu.Unlock()
	if s, ok := compiled[name]; ok {
		return s, nil
	}

	data, err := schemaFiles.ReadFile(name)
	if err != nil {
		return nil, &LoadError{Schema: name, Cause: fmt.Errorf("schema not found: %w", err)}
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, &LoadError{Schema: name, Cause: err}
	}
	compiled[name] = s
	return s, nil
}
