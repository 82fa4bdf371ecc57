package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesExistingCode(t *testing.T) {
	inner := New(CodeNotFound, "subject missing")
	wrapped := Wrap(inner, CodeInternal, "resolve failed")

	assert.True(t, HasCode(wrapped, CodeNotFound), "original code should survive wrapping")
	assert.Equal(t, "resolve failed", wrapped.Error())
	assert.True(t, errors.Is(wrapped, inner.(*Error)))
}

func TestWrapPlainError(t *testing.T) {
	plain := fmt.Errorf("connection refused")
	wrapped := Wrap(plain, CodeUnavailable, "cache unreachable")

	assert.True(t, HasCode(wrapped, CodeUnavailable))
	assert.ErrorIs(t, wrapped, plain)
}

func TestErrorMessageFallsBackToCode(t *testing.T) {
	err := &Error{Code: CodeLocked}
	assert.Equal(t, "account_locked", err.Error())
}

func TestHasCodeMismatch(t *testing.T) {
	err := New(CodeLinkExpired, "link expired")
	assert.False(t, HasCode(err, CodeLinkTampered))
	assert.False(t, HasCode(fmt.Errorf("plain"), CodeLinkExpired))
}
