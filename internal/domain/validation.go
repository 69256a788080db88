package domain

import "strings"

type ValidationResult struct {
	FailedRules []string `json:"failed_rules"`
}

// ValidateSchema checks the field rules a parsed template schema must satisfy
// before it is used for mapping. An empty field list is valid.
func ValidateSchema(s TemplateSchema) ValidationResult {
	failed := make([]string, 0)

	seen := make(map[string]struct{}, len(s.Fields))
	dup, blank, badType := false, false, false
	for _, f := range s.Fields {
		if strings.TrimSpace(f.ID) == "" {
			blank = true
			continue
		}
		if _, ok := seen[f.ID]; ok {
			dup = true
		}
		seen[f.ID] = struct{}{}
		if _, ok := NormalizeFieldType(string(f.Type)); !ok {
			badType = true
		}
	}
	if blank {
		failed = append(failed, "schema.field_id_present")
	}
	if dup {
		failed = append(failed, "schema.field_ids_unique")
	}
	if badType {
		failed = append(failed, "schema.field_type_allowed")
	}

	return ValidationResult{FailedRules: failed}
}

func ValidationPassed(r ValidationResult) bool {
	return len(r.FailedRules) == 0
}
