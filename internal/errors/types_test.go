package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormError_Error(t *testing.T) {
	err := NewFormError(ErrorTypePatternMismatch, "2 fields but 3 segments")
	assert.Equal(t, "[PATTERN_MISMATCH] 2 fields but 3 segments", err.Error())

	err.WithContext("key=ssn")
	assert.Equal(t, "[PATTERN_MISMATCH] 2 fields but 3 segments: key=ssn", err.Error())
}

func TestErrorType_Recoverable(t *testing.T) {
	tests := []struct {
		errorType   ErrorType
		recoverable bool
		severity    ErrorSeverity
	}{
		{ErrorTypePatternMismatch, true, SeverityWarning},
		{ErrorTypeUnmatchedValue, true, SeverityInfo},
		{ErrorTypeInvalidImage, true, SeverityWarning},
		{ErrorTypeInvalidRule, false, SeverityError},
		{ErrorTypeTemplateNotFound, false, SeverityError},
		{ErrorTypeFillFailed, false, SeverityCritical},
		{ErrorTypeUnknown, false, SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.errorType.String(), func(t *testing.T) {
			assert.Equal(t, tt.recoverable, tt.errorType.IsRecoverable())
			assert.Equal(t, tt.severity, tt.errorType.GetSeverity())
		})
	}
}

func TestFormError_Is(t *testing.T) {
	err := NewFormError(ErrorTypeTemplateNotFound, "template w9 not found").WithTemplate("w9")
	wrapped := fmt.Errorf("load: %w", err)

	assert.True(t, stderrors.Is(wrapped, &FormError{Type: ErrorTypeTemplateNotFound}))
	assert.False(t, stderrors.Is(wrapped, &FormError{Type: ErrorTypeInvalidTemplate}))

	var fe *FormError
	require.True(t, stderrors.As(wrapped, &fe))
	assert.Equal(t, "w9", fe.TemplateID)
}

func TestErrorCollection(t *testing.T) {
	ec := NewErrorCollection()
	assert.True(t, ec.Empty())
	assert.Equal(t, "No errors or warnings", ec.Summary())

	ec.Add(NewFormError(ErrorTypeUnmatchedValue, "no choice for \"x\"").WithKey("entity"))
	ec.Add(NewFormError(ErrorTypeInvalidImage, "bad base64").WithField("sig"))
	ec.Add(NewFormError(ErrorTypeFillFailed, "write failed"))

	errs, warns := ec.Count()
	assert.Equal(t, 1, errs)
	assert.Equal(t, 2, warns)
	assert.True(t, ec.HasCriticalErrors())
	assert.Contains(t, ec.Summary(), "including critical errors")

	unmatched := ec.ByType(ErrorTypeUnmatchedValue)
	require.Len(t, unmatched, 1)
	assert.Equal(t, "entity", unmatched[0].Key)

	other := NewErrorCollection()
	other.Add(NewFormError(ErrorTypeInvalidTIN, "8 digits"))
	ec.Merge(other)
	ec.Merge(nil)
	_, warns = ec.Count()
	assert.Equal(t, 3, warns)
}

func TestWrapError_Unwrap(t *testing.T) {
	sentinel := stderrors.New("invalid mapping rule")
	err := WrapError(ErrorTypeInvalidRule, fmt.Errorf("key %q: %w", "ssn", sentinel))

	assert.True(t, stderrors.Is(err, sentinel))
	assert.True(t, stderrors.Is(err, &FormError{Type: ErrorTypeInvalidRule}))
	assert.Contains(t, err.Error(), `key "ssn"`)
	assert.Nil(t, NewFormError(ErrorTypeUnknown, "x").Unwrap())
}
