package core

// mapper.go translates raw CSV rows into canonical items for import
// operations.
//
// The field map is captured once at session start: canonical field name ->
// CSV column name. Each field's sanitizer is a pure function declared once
// on the operation definition, never per row.

import "strings"

// MapRow builds a canonical item from a raw row using the session's field
// map. For each declared field it pulls the value from the mapped CSV
// column, sanitizes it, and substitutes the field default when the
// sanitized value is empty.
func MapRow(raw Row, fieldMap map[string]string, fields []FieldSpec) map[string]string {
	item := make(map[string]string, len(fields))

	for _, field := range fields {
		column, mapped := fieldMap[field.Name]
		value := ""
		if mapped {
			value = raw.Values[column]
		}

		value = strings.TrimSpace(value)
		if field.Sanitize != nil && value != "" {
			value = field.Sanitize(value)
		}
		if value == "" {
			value = field.Default
		}

		item[field.Name] = value
	}

	return item
}

// IsEmptyRow reports whether every mapped value of the raw row is empty.
// Empty trailing rows are skipped silently rather than counted as failures.
func IsEmptyRow(raw Row, fieldMap map[string]string) bool {
	for _, column := range fieldMap {
		if strings.TrimSpace(raw.Values[column]) != "" {
			return false
		}
	}
	return true
}

// ValidateFieldMap checks that every required field of the operation is
// mapped to a CSV column that exists in the resolved header.
func ValidateFieldMap(fieldMap map[string]string, fields []FieldSpec, headers []string) error {
	headerSet := make(map[string]bool, len(headers))
	for _, h := range headers {
		headerSet[strings.ToLower(strings.TrimSpace(h))] = true
	}

	var missing []string
	for _, field := range fields {
		if !field.Required {
			continue
		}
		column, mapped := fieldMap[field.Name]
		if !mapped || !headerSet[strings.ToLower(strings.TrimSpace(column))] {
			missing = append(missing, field.Name)
		}
	}

	if len(missing) > 0 {
		return &mappingError{fields: missing}
	}
	return nil
}

type mappingError struct {
	fields []string
}

func (e *mappingError) Error() string {
	return "missing required column mapping: " + strings.Join(e.fields, ", ")
}
