package capability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/selfsession/selfsession/pkg/boundary"
)

// policySchema validates capability policy documents before any id reaches
// the registry. Malformed policy fails closed at load time.
const policySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "capabilities"],
  "additionalProperties": false,
  "properties": {
    "version": {"type": "string", "const": "1"},
    "session_scope": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "file": {"type": "string"},
        "tool": {"type": "string"},
        "modality": {"type": "string"}
      }
    },
    "capabilities": {
      "type": "array",
      "minItems": 1,
      "uniqueItems": true,
      "items": {"type": "string", "minLength": 1}
    }
  }
}`

const policySchemaURL = "https://selfsession.schemas.local/capability-policy.schema.json"

// Policy is a parsed capability policy document.
type Policy struct {
	Version      string           `yaml:"version" json:"version"`
	SessionScope boundary.Context `yaml:"session_scope,omitempty" json:"session_scope,omitempty"`
	Capabilities []string         `yaml:"capabilities" json:"capabilities"`
}

// Registry builds the approved capability set from the policy.
func (p *Policy) Registry() *Registry {
	return NewRegistry(p.Capabilities...)
}

// LoadPolicy reads and validates a YAML capability policy file.
func LoadPolicy(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("capability: reading policy: %w", err)
	}
	return ParsePolicy(raw)
}

// ParsePolicy parses YAML policy bytes and validates them against the
// embedded JSON Schema.
func ParsePolicy(raw []byte) (*Policy, error) {
	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("capability: parsing policy YAML: %w", err)
	}

	// Round-trip through JSON so the schema validator sees JSON-typed
	// values rather than YAML's native types.
	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("capability: normalizing policy: %w", err)
	}
	var normalized interface{}
	dec := json.NewDecoder(bytes.NewReader(jsonBytes))
	dec.UseNumber()
	if err := dec.Decode(&normalized); err != nil {
		return nil, fmt.Errorf("capability: normalizing policy: %w", err)
	}

	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(normalized); err != nil {
		return nil, fmt.Errorf("capability: policy rejected by schema: %w", err)
	}

	var policy Policy
	if err := yaml.Unmarshal(raw, &policy); err != nil {
		return nil, fmt.Errorf("capability: decoding policy: %w", err)
	}
	return &policy, nil
}

func compiledSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(policySchemaURL, strings.NewReader(policySchema)); err != nil {
		return nil, fmt.Errorf("capability: loading policy schema: %w", err)
	}
	schema, err := c.Compile(policySchemaURL)
	if err != nil {
		return nil, fmt.Errorf("capability: compiling policy schema: %w", err)
	}
	return schema, nil
}
