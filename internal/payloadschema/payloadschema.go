// Package payloadschema holds optional JSON Schemas for event payloads,
// keyed by event type. Event types without a schema accept any payload.
package payloadschema

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
	"go.yaml.in/yaml/v4"

	"github.com/BearBump/TrackLog/internal/models"
)

type file struct {
	Schemas map[string]any `yaml:"schemas"`
}

type Registry struct {
	schemas map[string]*gojsonschema.Schema
}

// Load reads a YAML file of the form
//
//	schemas:
//	  departed:
//	    type: object
//	    required: [odometer]
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read payload schemas")
	}
	return Parse(data)
}

func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "unmarshal payload schemas")
	}

	r := &Registry{schemas: make(map[string]*gojsonschema.Schema, len(f.Schemas))}
	for eventType, doc := range f.Schemas {
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, errors.Wrapf(err, "schema %q", eventType)
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, errors.Wrapf(err, "compile schema %q", eventType)
		}
		r.schemas[eventType] = s
	}
	return r, nil
}

// EventTypes lists the event types that carry a schema, sorted.
func (r *Registry) EventTypes() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.schemas))
	for k := range r.schemas {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Validate checks payload against the schema registered for eventType. A nil
// registry or an unregistered event type accepts anything. An absent payload
// is validated as JSON null.
func (r *Registry) Validate(eventType string, payload json.RawMessage) error {
	if r == nil {
		return nil
	}
	s, ok := r.schemas[eventType]
	if !ok {
		return nil
	}

	doc := []byte(payload)
	if len(doc) == 0 {
		doc = []byte("null")
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return &models.ValidationError{Fields: []string{"payload"}, Reason: "payload is not valid JSON"}
	}
	if res.Valid() {
		return nil
	}

	fields := make([]string, 0, len(res.Errors()))
	seen := map[string]bool{}
	for _, e := range res.Errors() {
		f := "payload"
		if e.Field() != "" && e.Field() != gojsonschema.STRING_ROOT_SCHEMA_PROPERTY {
			f = "payload." + e.Field()
		}
		if !seen[f] {
			seen[f] = true
			fields = append(fields, f)
		}
	}
	return &models.ValidationError{
		Fields: fields,
		Reason: fmt.Sprintf("payload does not match schema for %q: %s", eventType, res.Errors()[0].Description()),
	}
}
