package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "message only",
			err:  New(CodeTargetNotFound, "target process 42 not found"),
			want: "target process 42 not found",
		},
		{
			name: "message and cause",
			err:  &Error{Code: CodeTelemetryUnavailable, Message: "powermetrics failed", Err: errors.New("exit status 1")},
			want: "powermetrics failed: exit status 1",
		},
		{
			name: "cause only",
			err:  &Error{Code: CodeShutdownTimeout, Err: errors.New("deadline exceeded")},
			want: "deadline exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(CodeConfigInvalid, nil, "invalid"))
}

func TestCodeOf(t *testing.T) {
	cause := errors.New("interval must be positive")
	err := fmt.Errorf("failed to start session: %w", Wrap(CodeConfigInvalid, cause, "invalid configuration"))

	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, CodeConfigInvalid, code)
	assert.ErrorIs(t, err, cause)

	_, ok = CodeOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestHasCodeNested(t *testing.T) {
	inner := New(CodeTargetLost, "target exited")
	outer := Wrap(CodeShutdownTimeout, inner, "reader did not stop")

	assert.True(t, HasCode(outer, CodeShutdownTimeout))
	assert.True(t, HasCode(outer, CodeTargetLost))
	assert.False(t, HasCode(outer, CodeConfigInvalid))
}

func TestIsMatchesBareCode(t *testing.T) {
	err := fmt.Errorf("tick: %w", Newf(CodeTargetLost, "pid %d exited", 7))

	assert.True(t, errors.Is(err, &Error{Code: CodeTargetLost}))
	assert.False(t, errors.Is(err, &Error{Code: CodeConfigInvalid}))
}
