package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrSchemaInvalid marks a JSON value failing structural validation against
// an agent's input_schema or output_schema.
var ErrSchemaInvalid = fmt.Errorf("workflow: schema validation failed")

// validateAgainstSchema compiles schemaJSON and validates docJSON against
// it. An empty schema ("", "{}", "null") is treated as "no constraint" and
// always passes.
func validateAgainstSchema(schemaJSON, docJSON []byte) error {
	if len(schemaJSON) == 0 {
		return nil
	}

	var schemaDoc interface{}
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return fmt.Errorf("workflow: parse schema: %w", err)
	}
	if schemaDoc == nil {
		return nil
	}
	if m, ok := schemaDoc.(map[string]interface{}); ok && len(m) == 0 {
		return nil
	}

	var doc interface{}
	if err := json.Unmarshal(docJSON, &doc); err != nil {
		return fmt.Errorf("%w: payload is not valid JSON: %s", ErrSchemaInvalid, err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaDoc); err != nil {
		return fmt.Errorf("workflow: add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("workflow: compile schema: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s", ErrSchemaInvalid, err)
	}
	return nil
}
