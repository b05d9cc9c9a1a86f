package core

// validation.go checks parsed records against the ingestion rules.
//
// Rules run in a fixed order and stop at the first failure:
//  1. An email is required unless the row comes from the fulfilment source
//     that withholds customer data
//  2. The order number must map to a sales channel
//  3. The item must carry a SKU
//  4. The address must parse

import "fmt"

// DefaultFBASource is the source name of orders fulfilled without customer data.
const DefaultFBASource = "Amazon FBA"

// FieldError represents a single problem with one cell.
type FieldError struct {
	Field   string // Field/column name
	Value   string // The invalid value
	Message string // Human-readable error message
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s %q", e.Field, e.Message, e.Value)
}

// RecordValidator applies the business rules to parsed records and keeps
// every failure it sees.
type RecordValidator struct {
	fbaSource string
	errors    []*RowError
}

// NewRecordValidator creates a validator. An empty fbaSource uses DefaultFBASource.
func NewRecordValidator(fbaSource string) *RecordValidator {
	if fbaSource == "" {
		fbaSource = DefaultFBASource
	}
	return &RecordValidator{fbaSource: fbaSource}
}

// Check returns the first rule rec violates, or nil.
func (v *RecordValidator) Check(rec *SalesRecord) error {
	if rec.Email == "" && rec.SourceName != v.fbaSource {
		return fmt.Errorf("missing email for non-%s order", v.fbaSource)
	}
	if _, err := rec.Channel(); err != nil {
		return err
	}
	if _, err := rec.SKU(); err != nil {
		return err
	}
	if _, err := ParseAddress(rec.RawAddress); err != nil {
		return err
	}
	return nil
}

// Validate checks rec and records a validation RowError on failure.
func (v *RecordValidator) Validate(rec *SalesRecord, row int) bool {
	err := v.Check(rec)
	if err == nil {
		return true
	}
	v.errors = append(v.errors, &RowError{
		Kind:   KindValidation,
		Row:    row,
		Reason: err.Error(),
		Record: rec,
		Err:    err,
	})
	return false
}

// Errors returns the failures recorded so far.
func (v *RecordValidator) Errors() []*RowError {
	return v.errors
}
