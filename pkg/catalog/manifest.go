package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/panbanda/klone/pkg/models"
)

// Manifest is the on-disk catalog format.
type Manifest struct {
	Courses     []models.Course     `json:"courses" yaml:"courses"`
	Submissions []models.Submission `json:"submissions" yaml:"submissions"`
}

const manifestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["courses"],
  "properties": {
    "courses": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name"],
        "properties": {
          "id": {"type": "integer", "minimum": 0},
          "name": {"type": "string"},
          "repo_url": {"type": "string"},
          "revision": {"type": "string"}
        }
      }
    },
    "submissions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "state", "project"],
        "properties": {
          "id": {"type": "integer", "minimum": 0},
          "state": {"enum": ["pending", "invalid", "open", "closed", "obsolete", "deleted"]},
          "revision": {"type": "string"},
          "project": {
            "type": "object",
            "required": ["id", "course_id", "denizen"],
            "properties": {
              "id": {"type": "integer"},
              "name": {"type": "string"},
              "course_id": {"type": "integer"},
              "deleted": {"type": "boolean"},
              "repo_url": {"type": "string"},
              "denizen": {
                "type": "object",
                "required": ["id"],
                "properties": {
                  "id": {"type": "integer"},
                  "name": {"type": "string"}
                }
              }
            }
          }
        }
      }
    }
  }
}`

var schema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(manifestSchema))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("manifest.json", doc); err != nil {
		return nil, err
	}
	return c.Compile("manifest.json")
})

// ParseManifest decodes and validates a manifest. format is "json" or "yaml".
func ParseManifest(data []byte, format string) (*Manifest, error) {
	var generic any
	switch format {
	case "json":
		if err := json.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("decode manifest: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("decode manifest: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported manifest format: %s", format)
	}

	// Validation runs on the JSON form so YAML and JSON manifests share
	// the same number and key handling.
	normalized, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("normalize manifest: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(normalized))
	if err != nil {
		return nil, fmt.Errorf("normalize manifest: %w", err)
	}
	sch, err := schema()
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(normalized, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// LoadManifest reads a manifest file; the format follows the extension.
func LoadManifest(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	m, err := ParseManifest(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewMemory(m.Courses, m.Submissions), nil
}
