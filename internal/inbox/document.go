package inbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/Diduck/notion-idea-pipeline/internal/ideasync"
)

const documentSchemaURL = "https://ideasync.local/schemas/input-document.json"

// documentSchema describes an input document: one optional entry per category
// key, holding either a block of text or a list of lines.
const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "minProperties": 1,
  "properties": {
    "month":   {"$ref": "#/$defs/entry"},
    "results": {"$ref": "#/$defs/entry"},
    "product": {"$ref": "#/$defs/entry"}
  },
  "$defs": {
    "entry": {
      "oneOf": [
        {"type": "string"},
        {"type": "array", "items": {"type": "string"}}
      ]
    }
  }
}`

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func inputSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchema))
		if err != nil {
			compileErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(documentSchemaURL, doc); err != nil {
			compileErr = err
			return
		}
		compiledSchema, compileErr = c.Compile(documentSchemaURL)
	})
	return compiledSchema, compileErr
}

// ParseDocument decodes a JSON or YAML input document into per-category
// buffer text. The format is picked from the file name extension; anything
// other than .json is read as YAML.
func ParseDocument(name string, data []byte) (map[ideasync.Category]string, error) {
	var raw any
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		decoded, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: decode json document: %v", ideasync.ErrInvalidInput, err)
		}
		raw = decoded
	default:
		var decoded any
		if err := yaml.Unmarshal(data, &decoded); err != nil {
			return nil, fmt.Errorf("%w: decode yaml document: %v", ideasync.ErrInvalidInput, err)
		}
		normalized, err := normalizeYAML(decoded)
		if err != nil {
			return nil, err
		}
		raw = normalized
	}

	schema, err := inputSchema()
	if err != nil {
		return nil, fmt.Errorf("compile input schema: %w", err)
	}
	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ideasync.ErrInvalidInput, err)
	}

	fields := raw.(map[string]any)
	out := make(map[ideasync.Category]string, len(fields))
	for key, value := range fields {
		category, err := ideasync.ParseCategory(key)
		if err != nil {
			return nil, err
		}
		switch v := value.(type) {
		case string:
			out[category] = v
		case []any:
			lines := make([]string, 0, len(v))
			for _, item := range v {
				lines = append(lines, item.(string))
			}
			out[category] = strings.Join(lines, "\n")
		}
	}
	return out, nil
}

// normalizeYAML round-trips through JSON so the validator sees the same value
// shapes as for JSON input.
func normalizeYAML(value any) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: yaml document is not representable as json: %v", ideasync.ErrInvalidInput, err)
	}
	out, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ideasync.ErrInvalidInput, err)
	}
	return out, nil
}

// Import appends every document entry to the matching buffer.
func (d *Dir) Import(name string, data []byte) (map[ideasync.Category]string, error) {
	parsed, err := ParseDocument(name, data)
	if err != nil {
		return nil, err
	}
	for _, category := range ideasync.Categories {
		text, ok := parsed[category]
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}
		if err := d.Append(category, text); err != nil {
			return nil, fmt.Errorf("append %s: %w", category.Key(), err)
		}
	}
	return parsed, nil
}
