package relationship

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesSentinelByKind(t *testing.T) {
	err := newError(KindNotFound, "accept", "request %s not found", "r1")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrForbidden)
	assert.Equal(t, "accept: request r1 not found", err.Error())

	wrapped := fmt.Errorf("handler: %w", err)
	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestInternalWrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := internal("create", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "create: storage failure: disk full", err.Error())
	assert.Equal(t, KindInternal, KindOf(cause))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "INVALID_STATE", KindInvalidState.String())
	assert.Equal(t, "CONSISTENCY_FAULT", KindConsistencyFault.String())
	assert.Equal(t, "INTERNAL", Kind(99).String())
	assert.Equal(t, "FORBIDDEN", ErrForbidden.Error())
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("Accept")
	require.NoError(t, err)
	assert.Equal(t, ActionAccept, a)

	a, err = ParseAction("reject")
	require.NoError(t, err)
	assert.Equal(t, ActionReject, a)

	_, err = ParseAction("block")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, ok := Action(7).target()
	assert.False(t, ok)
	assert.Equal(t, "Action(7)", Action(7).String())
}
