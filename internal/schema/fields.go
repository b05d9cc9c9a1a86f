// Package schema declares the CSV layouts salesync understands.
package schema

// FieldType represents the expected data type for a CSV field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldDate
	FieldNumeric
	FieldInteger
)

// String returns a human-readable name for a field type.
func (ft FieldType) String() string {
	switch ft {
	case FieldText:
		return "text"
	case FieldDate:
		return "date"
	case FieldNumeric:
		return "numeric"
	case FieldInteger:
		return "integer"
	default:
		return "unknown"
	}
}

// FieldSpec defines the rules for a single CSV column.
type FieldSpec struct {
	Name     string    // Column header name, matched case-insensitively
	Type     FieldType // Expected data type
	Required bool      // Column must exist in the CSV header
}

// Names returns the header names of specs.
func Names(specs []FieldSpec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.Name
	}
	return out
}

// RequiredNames returns the header names of the required specs.
func RequiredNames(specs []FieldSpec) []string {
	var out []string
	for _, s := range specs {
		if s.Required {
			out = append(out, s.Name)
		}
	}
	return out
}
