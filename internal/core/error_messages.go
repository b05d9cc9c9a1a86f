// Package core holds the record pipeline of salesync: reading sales exports,
// turning rows into typed records, and validating them.
//
// # Error Codes Reference
//
// Failures carry a short code that appears in ingestion reports so that an
// operator can look up what happened and what to do about it.
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key: A record with this key already exists
//	        Patterns: "duplicate key"
//	DB002 - Unique constraint: This value must be unique but already exists
//	        Patterns: "unique constraint", "violates unique"
//	DB003 - Foreign key: Referenced record does not exist
//	        Patterns: "foreign key constraint", "violates foreign key"
//	DB004 - Connection refused: Unable to connect to database
//	DB005 - Connection reset: Database connection was interrupted
//	DB006 - Timeout: Operation timed out
//	DB007 - Deadlock: Database was busy with conflicting operations
//
// # Row Errors (ROW001-ROW099)
//
//	ROW001 - Invalid quantity: Quantity is not a non-negative number
//	ROW002 - Invalid number: Price or amount is not a number
//	ROW003 - Missing cell: The row is shorter than the header
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Missing email: Only fulfilment-withheld orders may omit it
//	VAL002 - Invalid order number: No sales channel matches the order number
//	VAL003 - Missing SKU: The item text carries no SKU
//	VAL004 - Invalid address: The address has no ZIP code or state
//
// # Resolution Errors (RES001-RES099)
//
//	RES001 - Company: The customer's company could not be resolved
//	RES002 - Person: The customer could not be resolved
//	RES003 - Product: The product could not be resolved
//	RES004 - Order: The order or its line items could not be written
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the configured size limit
//	FILE002 - Invalid CSV: File is not a valid CSV
//	FILE003 - Encoding error: File is not in a supported text encoding
//	FILE004 - No file: The input file does not exist
//	FILE005 - Empty file: The input has no data rows
//	FILE006 - Missing column: Required columns are missing from the header
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Cancelled: The run was interrupted
//	RUN002 - Timed out: The run exceeded its deadline
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: check the logs for the technical error
//
// Patterns are matched case-insensitively with strings.Contains and the first
// match wins, so specific patterns come before general ones.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

func pat(pattern, code, message, action string) errorPattern {
	return errorPattern{pattern: pattern, msg: UserMessage{Message: message, Action: action, Code: code}}
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins, so order matters.
var errorPatterns = []errorPattern{
	// Database constraint errors
	pat("duplicate key", "DB001", "A record with this key already exists", "Re-run the ingest; existing records are reused"),
	pat("unique constraint", "DB002", "This value must be unique but already exists", "Check for duplicate keys in the file"),
	pat("violates unique", "DB002", "A duplicate value was found", "Check for duplicate keys in the file"),
	pat("foreign key constraint", "DB003", "Referenced record does not exist", "Import the referenced records first"),
	pat("violates foreign key", "DB003", "Referenced record does not exist", "Import the referenced records first"),

	// Database connection errors
	pat("connection refused", "DB004", "Unable to connect to database", "Check DATABASE_URL and that the server is running"),
	pat("connection reset", "DB005", "Database connection was interrupted", "Please try again"),
	pat("deadlock", "DB007", "Database was busy with conflicting operations", "Please try again"),

	// Row parse errors
	pat("invalid quantity", "ROW001", "Quantity is not a non-negative number", "Fix the Qty cell"),
	pat("invalid number", "ROW002", "Price or amount is not a number", "Fix the Sales Price or Amount cell"),
	pat("missing cell", "ROW003", "The row has fewer cells than the header", "Check the row for a missing delimiter"),

	// Validation errors
	pat("missing email", "VAL001", "Customer email is missing", "Add the customer's email or mark the row as fulfilment-withheld"),
	pat("invalid order number", "VAL002", "No sales channel matches the order number", "Check the Num column"),
	pat("unable to extract sku", "VAL003", "The item has no SKU", "Use the form \"SKU (description)\" in the Item column"),
	pat("failed to parse address", "VAL004", "The address has no ZIP code or state", "Fix the Name Address cell"),

	// Resolution errors
	pat("resolve company", "RES001", "The customer's company could not be resolved", "Check the logs and re-run"),
	pat("resolve person", "RES002", "The customer could not be resolved", "Check the logs and re-run"),
	pat("resolve product", "RES003", "The product could not be resolved", "Check the logs and re-run"),
	pat("create order", "RES004", "The order could not be written", "Check the logs and re-run"),

	// File errors
	pat("file too large", "FILE001", "File exceeds the configured size limit", "Split the file or raise INGEST_MAX_FILE_SIZE"),
	pat("invalid csv", "FILE002", "File is not a valid CSV", "Ensure file is comma-separated with consistent columns"),
	pat("encoding error", "FILE003", "File is not in a supported text encoding", "Save the file as UTF-8"),
	pat("no such file", "FILE004", "The input file does not exist", "Check the path"),
	pat("empty file", "FILE005", "The input has no data rows", "Export the report again"),
	pat("missing required column", "FILE006", "Required columns are missing from the header", "Export the report with all detail columns"),

	// Run errors
	pat("context canceled", "RUN001", "The run was interrupted", "Re-run; completed orders are skipped"),
	pat("context deadline exceeded", "RUN002", "The run exceeded its deadline", "Re-run; completed orders are skipped"),
	pat("timeout", "DB006", "Operation timed out", "Please try again"),
}

// defaultMessage is returned when no pattern matches (ERR000).
// This is the fallback for unexpected errors. Support staff should check
// application logs for the original technical error when users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the logs for the technical error",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
//
// Example:
//
//	err := errors.New("duplicate key violation")
//	msg := MapError(err)
//	// msg.Code == "DB001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing checks if an error matches a known pattern and should be shown to users.
// Returns true if the error matches a specific pattern (not the generic ERR000 fallback).
// Use this to decide whether to show the raw error or the mapped user message.
//
// Example:
//
//	if IsUserFacing(err) {
//	    fmt.Fprintln(os.Stderr, FormatUserError(err))
//	}
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging while providing a clean message for users.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error to a user-friendly message.
// The returned UserError preserves the original technical error for logging via Unwrap(),
// while providing a clean user message via Error().
//
// Returns nil if err is nil.
//
// Example:
//
//	ue := NewUserError(err)
//	slog.Error("ingest failed", "error", ue.Technical)
//	fmt.Fprintln(os.Stderr, ue.Error(), ue.User.Code)
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
