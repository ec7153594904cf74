package task

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed descriptor.schema.json
var descriptorSchema string

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(descriptorSchema))
})

// Schema returns the JSON schema task files are validated against.
func Schema() string { return descriptorSchema }

// validateSchema checks raw JSON against the descriptor schema. A missing
// required key is reported as ErrMissingField, anything else as ErrSchema.
func validateSchema(raw []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile descriptor schema: %w", err)
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if res.Valid() {
		return nil
	}

	kind := ErrSchema
	msgs := make([]string, 0, len(res.Errors()))
	for _, re := range res.Errors() {
		if re.Type() == "required" {
			kind = ErrMissingField
		}
		msgs = append(msgs, re.String())
	}
	return fmt.Errorf("%w: %s", kind, strings.Join(msgs, "; "))
}
