package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without cause",
			err:  NewConfigError("invalid date range", nil),
			want: "[CONFIG] invalid date range",
		},
		{
			name: "with cause",
			err:  NewSourceUnavailableError("fetch DGS10", errors.New("connection refused")),
			want: "[SOURCE_UNAVAILABLE] fetch DGS10: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewStorageError("write failed", cause)

	assert.True(t, errors.Is(err, cause))

	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrTypeStorage, appErr.Type)
}

func TestAppError_WithContext(t *testing.T) {
	err := NewMalformedBarError("bad bar", nil).
		WithContext("symbol", "SPY").
		WithContext("row", 17)

	assert.Equal(t, "SPY", err.Context["symbol"])
	assert.Equal(t, 17, err.Context["row"])
}

func TestTypeHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"insufficient history", NewInsufficientHistoryError("no seed", nil), IsInsufficientHistory, true},
		{"malformed bar", NewMalformedBarError("bad", nil), IsMalformedBar, true},
		{"source unavailable", NewSourceUnavailableError("down", nil), IsSourceUnavailable, true},
		{"config", NewConfigError("bad", nil), IsConfig, true},
		{"not found", NewNotFoundError("series SPY"), IsNotFound, true},
		{"wrapped still matches", fmt.Errorf("load: %w", NewConfigError("bad", nil)), IsConfig, true},
		{"plain error does not match", errors.New("plain"), IsConfig, false},
		{"wrong type does not match", NewConfigError("bad", nil), IsMalformedBar, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, ErrTypeParsing, TypeOf(NewParsingError("bad csv", nil)))
	assert.Equal(t, ErrorType(""), TypeOf(errors.New("plain")))
	assert.Equal(t, ErrorType(""), TypeOf(nil))
}
