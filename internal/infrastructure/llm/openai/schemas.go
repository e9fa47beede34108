package openai

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/ktBigDeal/customs-clearance-sub000/internal/core/ports"
)

// errSchemaViolation marks model output that parsed but does not conform.
// The resilience classifier retries these without counting a breaker
// failure.
var errSchemaViolation = errors.New("response schema violation")

var responseSchemas = map[string]*openapi3.Schema{
	ports.SchemaQueryClassification:  queryClassificationSchema(),
	ports.SchemaFilterClassification: filterClassificationSchema(),
	ports.SchemaRoutingDecision:      routingDecisionSchema(),
}

func validateResponse(schemaName string, payload []byte) error {
	schema, ok := responseSchemas[schemaName]
	if !ok {
		return fmt.Errorf("unknown response schema %q", schemaName)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("%w: parse %s output: %v", errSchemaViolation, schemaName, err)
	}
	if err := schema.VisitJSON(decoded); err != nil {
		return fmt.Errorf("%w: %s output: %v", errSchemaViolation, schemaName, err)
	}
	return nil
}

func queryClassificationSchema() *openapi3.Schema {
	intent := openapi3.NewObjectSchema().
		WithProperty("intent_type", openapi3.NewStringSchema()).
		WithProperty("key_concepts", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())).
		WithProperty("domain_category", openapi3.NewStringSchema()).
		WithProperty("urgency", openapi3.NewStringSchema()).
		WithProperty("specificity", openapi3.NewStringSchema())
	intent.Required = []string{"intent_type", "domain_category"}

	s := openapi3.NewObjectSchema().
		WithProperty("normalized_query", openapi3.NewStringSchema()).
		WithProperty("expanded_query", openapi3.NewStringSchema()).
		WithProperty("intent", intent)
	s.Required = []string{"normalized_query", "intent"}
	return s
}

func filterClassificationSchema() *openapi3.Schema {
	s := openapi3.NewObjectSchema().
		WithProperty("category", openapi3.NewStringSchema()).
		WithProperty("data_type", openapi3.NewStringSchema()).
		WithProperty("regulation_type", openapi3.NewStringSchema()).
		WithProperty("country", openapi3.NewStringSchema()).
		WithProperty("hs_code", openapi3.NewStringSchema()).
		WithProperty("law_name", openapi3.NewStringSchema()).
		WithProperty("article", openapi3.NewStringSchema()).
		WithProperty("confidence", openapi3.NewFloat64Schema().WithMin(0).WithMax(1))
	s.Required = []string{"category", "confidence"}
	return s
}

func routingDecisionSchema() *openapi3.Schema {
	s := openapi3.NewObjectSchema().
		WithProperty("specialist", openapi3.NewStringSchema()).
		WithProperty("reasoning", openapi3.NewStringSchema()).
		WithProperty("complexity", openapi3.NewFloat64Schema().WithMin(0).WithMax(1)).
		WithProperty("requires_multiple", openapi3.NewBoolSchema())
	s.Required = []string{"specialist"}
	return s
}
