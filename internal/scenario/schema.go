package scenario

import (
	_ "embed"
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

var schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)

// Schema returns the JSON schema suite documents are validated against.
func Schema() []byte {
	out := make([]byte, len(schemaJSON))
	copy(out, schemaJSON)
	return out
}

// validateDocument checks raw YAML against the suite schema and returns the
// problems found, sorted by path.
func validateDocument(data []byte) ([]Problem, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if doc == nil {
		return []Problem{{Message: "document is empty"}}, nil
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	problems := make([]Problem, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		path := e.Field()
		if path == "(root)" {
			path = ""
		}
		problems = append(problems, Problem{Path: path, Message: e.Description()})
	}
	sort.SliceStable(problems, func(i, j int) bool { return problems[i].Path < problems[j].Path })
	return problems, nil
}
