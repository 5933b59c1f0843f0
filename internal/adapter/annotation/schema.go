package annotation

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kaptinlin/jsonschema"

	"wa-resolver/internal/domain"
)

// LoadSchema compiles the JSON Schema at path.
func LoadSchema(path string) (*jsonschema.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return CompileSchema(data)
}

// CompileSchema compiles a JSON Schema document.
func CompileSchema(data []byte) (*jsonschema.Schema, error) {
	schema, err := jsonschema.NewCompiler().Compile(data)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return schema, nil
}

// WithSchema makes Fetch reject documents that do not validate against schema.
func WithSchema(schema *jsonschema.Schema) Option {
	return func(cl *Client) { cl.schema = schema }
}

func (c *Client) validate(body []byte) error {
	if c.schema == nil {
		return nil
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return domain.NewSubSystemError(subsystem, "Client.Fetch", domain.ErrInvalidInput, err.Error())
	}
	if result := c.schema.Validate(doc); !result.IsValid() {
		return domain.NewSubSystemError(subsystem, "Client.Fetch", domain.ErrInvalidInput,
			fmt.Sprintf("schema: %s", result.Error()))
	}
	return nil
}
