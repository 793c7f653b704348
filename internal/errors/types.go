package errors

import (
	"fmt"
	"time"
)

// FormError describes a problem met while turning form data into field values
// or while loading and writing a template document.
type FormError struct {
	Type        ErrorType `json:"type"`
	Message     string    `json:"message"`
	Context     string    `json:"context,omitempty"`
	Key         string    `json:"key,omitempty"`   // logical answer key
	Field       string    `json:"field,omitempty"` // target widget name
	Recoverable bool      `json:"recoverable"`
	Timestamp   time.Time `json:"timestamp"`
	TemplateID  string    `json:"template_id,omitempty"`
	cause       error
}

// ErrorType represents different categories of form errors
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeInvalidRule
	ErrorTypePatternMismatch
	ErrorTypeUnmatchedValue
	ErrorTypeInvalidTIN
	ErrorTypeInvalidImage
	ErrorTypeMissingField
	ErrorTypeAmbiguousGeometry
	ErrorTypeTemplateNotFound
	ErrorTypeInvalidTemplate
	ErrorTypeInvalidDocument
	ErrorTypeFillFailed
	ErrorTypeSecurityRestriction
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// Error implements the error interface
func (e *FormError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Type.String(), e.Message, e.Context)
	}
	return fmt.Sprintf("[%s] %s", e.Type.String(), e.Message)
}

// String returns a string representation of the ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeInvalidRule:
		return "INVALID_RULE"
	case ErrorTypePatternMismatch:
		return "PATTERN_MISMATCH"
	case ErrorTypeUnmatchedValue:
		return "UNMATCHED_VALUE"
	case ErrorTypeInvalidTIN:
		return "INVALID_TIN"
	case ErrorTypeInvalidImage:
		return "INVALID_IMAGE"
	case ErrorTypeMissingField:
		return "MISSING_FIELD"
	case ErrorTypeAmbiguousGeometry:
		return "AMBIGUOUS_GEOMETRY"
	case ErrorTypeTemplateNotFound:
		return "TEMPLATE_NOT_FOUND"
	case ErrorTypeInvalidTemplate:
		return "INVALID_TEMPLATE"
	case ErrorTypeInvalidDocument:
		return "INVALID_DOCUMENT"
	case ErrorTypeFillFailed:
		return "FILL_FAILED"
	case ErrorTypeSecurityRestriction:
		return "SECURITY_RESTRICTION"
	default:
		return "UNKNOWN"
	}
}

// GetSeverity returns the severity level for a given error type
func (et ErrorType) GetSeverity() ErrorSeverity {
	switch et {
	case ErrorTypeUnmatchedValue, ErrorTypeAmbiguousGeometry:
		return SeverityInfo
	case ErrorTypePatternMismatch, ErrorTypeInvalidTIN, ErrorTypeInvalidImage, ErrorTypeMissingField:
		return SeverityWarning
	case ErrorTypeInvalidRule, ErrorTypeTemplateNotFound, ErrorTypeInvalidTemplate:
		return SeverityError
	case ErrorTypeSecurityRestriction:
		return SeverityError
	case ErrorTypeInvalidDocument, ErrorTypeFillFailed:
		return SeverityCritical
	default:
		return SeverityError
	}
}

// IsRecoverable reports whether processing can continue past an error of this type.
// Data-shape problems are local to one rule; broken templates and documents are not.
func (et ErrorType) IsRecoverable() bool {
	switch et {
	case ErrorTypePatternMismatch, ErrorTypeUnmatchedValue, ErrorTypeInvalidTIN:
		return true
	case ErrorTypeInvalidImage, ErrorTypeMissingField, ErrorTypeAmbiguousGeometry:
		return true
	default:
		return false
	}
}

// NewFormError creates a new FormError
func NewFormError(errorType ErrorType, message string) *FormError {
	return &FormError{
		Type:        errorType,
		Message:     message,
		Recoverable: errorType.IsRecoverable(),
		Timestamp:   time.Now(),
	}
}

// NewFormErrorWithContext creates a new FormError with additional context
func NewFormErrorWithContext(errorType ErrorType, message, context string) *FormError {
	e := NewFormError(errorType, message)
	e.Context = context
	return e
}

// WrapError wraps a standard error as a FormError
func WrapError(errorType ErrorType, err error) *FormError {
	e := NewFormError(errorType, err.Error())
	e.cause = err
	return e
}

// Unwrap returns the error passed to WrapError, if any.
func (e *FormError) Unwrap() error {
	return e.cause
}

// WithContext adds context to an existing FormError
func (e *FormError) WithContext(context string) *FormError {
	e.Context = context
	return e
}

// WithKey records the logical answer key the error belongs to
func (e *FormError) WithKey(key string) *FormError {
	e.Key = key
	return e
}

// WithField records the target widget name the error belongs to
func (e *FormError) WithField(field string) *FormError {
	e.Field = field
	return e
}

// WithTemplate records the template the error belongs to
func (e *FormError) WithTemplate(templateID string) *FormError {
	e.TemplateID = templateID
	return e
}

// GetSeverity returns the severity of this specific error
func (e *FormError) GetSeverity() ErrorSeverity {
	return e.Type.GetSeverity()
}

// IsCritical returns true if this error is critical
func (e *FormError) IsCritical() bool {
	return e.GetSeverity() == SeverityCritical
}

// Is lets errors.Is match a FormError against another FormError of the same type.
func (e *FormError) Is(target error) bool {
	t, ok := target.(*FormError)
	if !ok {
		return false
	}
	return t.Type == e.Type && (t.Message == "" || t.Message == e.Message)
}

// ErrorCollection manages multiple form errors
type ErrorCollection struct {
	Errors   []*FormError `json:"errors"`
	Warnings []*FormError `json:"warnings"`
}

// NewErrorCollection creates a new error collection
func NewErrorCollection() *ErrorCollection {
	return &ErrorCollection{
		Errors:   make([]*FormError, 0),
		Warnings: make([]*FormError, 0),
	}
}

// Add adds an error to the appropriate collection based on severity
func (ec *ErrorCollection) Add(err *FormError) {
	severity := err.GetSeverity()
	if severity == SeverityWarning || severity == SeverityInfo {
		ec.Warnings = append(ec.Warnings, err)
	} else {
		ec.Errors = append(ec.Errors, err)
	}
}

// Merge appends every entry of other to ec.
func (ec *ErrorCollection) Merge(other *ErrorCollection) {
	if other == nil {
		return
	}
	ec.Errors = append(ec.Errors, other.Errors...)
	ec.Warnings = append(ec.Warnings, other.Warnings...)
}

// HasCriticalErrors returns true if any critical errors exist
func (ec *ErrorCollection) HasCriticalErrors() bool {
	for _, err := range ec.Errors {
		if err.IsCritical() {
			return true
		}
	}
	return false
}

// ByType returns every recorded entry of the given type, errors first.
func (ec *ErrorCollection) ByType(errorType ErrorType) []*FormError {
	var out []*FormError
	for _, err := range ec.Errors {
		if err.Type == errorType {
			out = append(out, err)
		}
	}
	for _, err := range ec.Warnings {
		if err.Type == errorType {
			out = append(out, err)
		}
	}
	return out
}

// Count returns the total number of errors and warnings
func (ec *ErrorCollection) Count() (errors, warnings int) {
	return len(ec.Errors), len(ec.Warnings)
}

// Empty reports whether nothing was recorded.
func (ec *ErrorCollection) Empty() bool {
	return len(ec.Errors) == 0 && len(ec.Warnings) == 0
}

// Summary returns a text summary of all errors and warnings
func (ec *ErrorCollection) Summary() string {
	errorCount, warningCount := ec.Count()
	if errorCount == 0 && warningCount == 0 {
		return "No errors or warnings"
	}

	summary := fmt.Sprintf("Found %d error(s) and %d warning(s)", errorCount, warningCount)

	if ec.HasCriticalErrors() {
		summary += " (including critical errors)"
	}

	return summary
}
