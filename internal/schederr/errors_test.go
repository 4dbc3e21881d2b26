package schederr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesOnKind(t *testing.T) {
	err := New(KindSlotUnavailable, "create", "interval %s is taken", "10:00-10:30")
	wrapped := fmt.Errorf("admission: %w", err)

	assert.ErrorIs(t, wrapped, ErrSlotUnavailable)
	assert.NotErrorIs(t, wrapped, ErrIllegalTransition)
	assert.Equal(t, KindSlotUnavailable, KindOf(wrapped))
	assert.Equal(t, "interval 10:00-10:30 is taken", MessageOf(wrapped))
}

func TestWrapKeepsExistingKind(t *testing.T) {
	inner := New(KindNotFound, "get", "appointment not found")
	err := Wrap(KindBackendUnavailable, "load", inner)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestBackendPreservesCause(t *testing.T) {
	err := Backend("list", context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, Backend("noop", nil))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, "busy", KindBusy.String())
}
