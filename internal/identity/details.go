package identity

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"
	"gorm.io/datatypes"
)

// ErrInvalidDetails wraps schema violations in provider details.
var ErrInvalidDetails = errors.New("identity: invalid provider details")

//go:embed provider_details.schema.json
var detailsSchemaJSON []byte

var (
	detailsSchemaOnce sync.Once
	detailsSchema     *jsonschema.Schema
	detailsSchemaErr  error
)

func compiledDetailsSchema() (*jsonschema.Schema, error) {
	detailsSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		detailsSchema, detailsSchemaErr = compiler.Compile(detailsSchemaJSON)
	})
	return detailsSchema, detailsSchemaErr
}

// ValidateDetails checks details against the provider details schema and
// returns them encoded for storage. Nil or empty details encode to nil.
func ValidateDetails(details map[string]interface{}) (datatypes.JSON, error) {
	if len(details) == 0 {
		return nil, nil
	}

	schema, err := compiledDetailsSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile provider details schema: %w", err)
	}

	result := schema.Validate(details)
	if !result.IsValid() {
		var msgs []string
		for field, evalErr := range result.Errors {
			msgs = append(msgs, fmt.Sprintf("%s: %s", field, evalErr.Error()))
		}
		sort.Strings(msgs)
		return nil, fmt.Errorf("%w: %s", ErrInvalidDetails, strings.Join(msgs, "; "))
	}

	encoded, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDetails, err)
	}
	return datatypes.JSON(encoded), nil
}
