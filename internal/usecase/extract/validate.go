package extract

import (
	"fmt"
	"strings"

	"scenetuner/internal/domain"
)

// Validate reports one message per parameter that lacks a required metadata
// key or declares an unrecognized type marker.
func Validate(specs []domain.ParameterSpec) (bool, []string) {
	var problems []string
	for _, spec := range specs {
		var missing []string
		for _, key := range domain.RequiredKeys {
			if !spec.HasKey(key) {
				missing = append(missing, key)
			}
		}
		var parts []string
		if len(missing) > 0 {
			parts = append(parts, "missing "+strings.Join(missing, ", "))
		}
		if spec.HasKey(domain.KeyType) && spec.Type == domain.TypeUnknown {
			parts = append(parts, fmt.Sprintf("unknown type %q", spec.TypeToken))
		}
		if len(parts) > 0 {
			problems = append(problems, fmt.Sprintf("%s: %s", spec.Name, strings.Join(parts, "; ")))
		}
	}
	return len(problems) == 0, problems
}

// SchemaError wraps the Validate messages as an ErrSchema error, or returns
// nil when specs are complete.
func SchemaError(specs []domain.ParameterSpec) error {
	ok, problems := Validate(specs)
	if ok {
		return nil
	}
	return domain.NewSubSystemError("extract", "Extract.Validate", domain.ErrSchema,
		strings.Join(problems, "; "))
}
