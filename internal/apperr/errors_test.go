package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	withCause := New(KindTransientExternal, "store.Query", errors.New("connection reset"))
	assert.Equal(t, "store.Query: transient_external: connection reset", withCause.Error())

	withoutCause := New(KindUserInput, "httpapi.parseLimit", nil)
	assert.Equal(t, "httpapi.parseLimit: user_input", withoutCause.Error())
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	wrapped := New(KindPermanentConfig, "config.Load", cause)
	assert.Same(t, cause, errors.Unwrap(wrapped))
}

func TestIs(t *testing.T) {
	err := New(KindIntegrityConflict, "narrative.attach", errors.New("version mismatch"))
	wrapped := fmt.Errorf("propagated: %w", err)

	assert.True(t, Is(wrapped, KindIntegrityConflict))
	assert.False(t, Is(wrapped, KindValidationFailure))
	assert.False(t, Is(errors.New("plain error"), KindIntegrityConflict))
}

func TestKindOf(t *testing.T) {
	err := New(KindRateLimitBlocked, "llm.Complete", errors.New("429"))
	assert.Equal(t, KindRateLimitBlocked, KindOf(err))
	assert.Equal(t, KindUnknown, KindOf(errors.New("unrelated")))
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindTransientExternal, "transient_external"},
		{KindRateLimitBlocked, "rate_limit_blocked"},
		{KindValidationFailure, "validation_failure"},
		{KindIntegrityConflict, "integrity_conflict"},
		{KindPermanentConfig, "permanent_config"},
		{KindUserInput, "user_input"},
		{KindUnknown, "unknown"},
		{Kind(999), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.String())
	}
}
