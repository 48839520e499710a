package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without underlying error",
			err:      New(CodeDatabaseError, "connection failed"),
			expected: "[DATABASE_ERROR] connection failed",
		},
		{
			name:     "with underlying error",
			err:      Wrap(CodeStorageError, "upload failed", errors.New("network timeout")),
			expected: "[STORAGE_ERROR] upload failed: network timeout",
		},
		{
			name:     "malformed source map",
			err:      MalformedSourceMap("dist/app.js.map", errors.New("unexpected end of JSON input")),
			expected: "[MALFORMED_SOURCE_MAP] malformed source map dist/app.js.map: unexpected end of JSON input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := UnreadableFile("/tmp/x.map", underlying)

	assert.Equal(t, underlying, err.Unwrap())
	assert.True(t, errors.Is(err, underlying))
}

func TestAppError_Is(t *testing.T) {
	err1 := New(CodeDatabaseError, "error 1")
	err2 := New(CodeDatabaseError, "error 2")
	err3 := New(CodeStorageError, "error 3")

	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, err3))
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		check    func(error) bool
		expected bool
	}{
		{"malformed", MalformedSourceMap("a.map", nil), IsMalformedSourceMap, true},
		{"malformed wrapped with fmt", fmt.Errorf("load: %w", MalformedSourceMap("a.map", nil)), IsMalformedSourceMap, true},
		{"unreadable", UnreadableFile("a.map", nil), IsUnreadableFile, true},
		{"unreadable is not malformed", UnreadableFile("a.map", nil), IsMalformedSourceMap, false},
		{"invalid input", ErrInvalidInput, IsInvalidInput, true},
		{"database", Wrap(CodeDatabaseError, "db", errors.New("refused")), IsDatabaseError, true},
		{"storage", ErrStorageError, IsStorageError, true},
		{"not found", Wrap(CodeNotFound, "no such report", nil), IsNotFound, true},
		{"plain error", errors.New("x"), IsDatabaseError, false},
		{"nil error", nil, IsStorageError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.check(tt.err))
		})
	}
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, CodeMalformedSourceMap, GetErrorCode(MalformedSourceMap("a.map", nil)))
	assert.Equal(t, CodeNotFound, GetErrorCode(fmt.Errorf("wrapped: %w", ErrNotFound)))
	assert.Equal(t, CodeUnknown, GetErrorCode(errors.New("standard error")))
	assert.Equal(t, CodeUnknown, GetErrorCode(nil))
}

func TestGetErrorMessage(t *testing.T) {
	assert.Equal(t, "configuration error", GetErrorMessage(ErrConfigError))
	assert.Equal(t, "standard error", GetErrorMessage(errors.New("standard error")))
	assert.Equal(t, "", GetErrorMessage(nil))
}
