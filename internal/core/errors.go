package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind classifies a per-record failure.
type ErrorKind string

const (
	// KindParse marks a row whose fields could not be converted.
	KindParse ErrorKind = "parse"
	// KindValidation marks a parsed record that failed a business rule.
	KindValidation ErrorKind = "validation"
	// KindResolution marks a record whose entities or order could not be
	// resolved or written.
	KindResolution ErrorKind = "resolution"
)

// RowError is a failure local to one input row. The batch continues.
// Data holds the raw cells for parse errors; Record holds the parsed record
// for validation and resolution errors.
type RowError struct {
	Kind   ErrorKind
	Row    int
	Reason string
	Data   map[string]string
	Record *SalesRecord
	Err    error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s error: %s", e.Row, e.Kind, e.Reason)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Code returns the support code for the failure.
func (e *RowError) Code() string {
	if e.Err != nil {
		if msg := MapError(e.Err); msg.Code != defaultMessage.Code {
			return msg.Code
		}
	}
	return MapError(errors.New(e.Reason)).Code
}

// FatalError aborts a whole run: the input could not be opened or decoded,
// or required columns are missing.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err is or wraps a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// MissingColumnsError lists required columns absent from a header.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return "missing required columns: " + strings.Join(e.Columns, ", ")
}

// SortRowErrors orders errors by row number, keeping insertion order for ties.
func SortRowErrors(errs []*RowError) {
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Row < errs[j].Row })
}
