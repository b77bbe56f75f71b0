package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	err := New(ErrCodeAlreadyDecided, "someone already acted")
	assert.Equal(t, ErrCodeAlreadyDecided, CodeOf(err))

	wrapped := fmt.Errorf("act: %w", err)
	assert.Equal(t, ErrCodeAlreadyDecided, CodeOf(wrapped))

	assert.Equal(t, ErrCodeInternal, CodeOf(stderrors.New("plain")))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, ErrCodeInternal, "ignored"))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, ErrCodeUnavailable, "directory unreachable")

	assert.True(t, IsCode(err, ErrCodeUnavailable))
	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, "directory unreachable", Message(err))
}

func TestNotFound(t *testing.T) {
	err := NotFound("approval_instance", "abc")
	assert.Equal(t, ErrCodeNotFound, CodeOf(err))
	assert.Contains(t, err.Error(), `approval_instance "abc" not found`)
}
