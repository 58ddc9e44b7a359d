package dispatchtype_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/pkg/dispatchtype"
)

func TestWith(t *testing.T) {
	t.Parallel()

	s := dispatchtype.Unset.With(dispatchtype.Request)
	s = s.With(dispatchtype.Forward)
	assert.Equal(t, dispatchtype.Request|dispatchtype.Forward, s)
	assert.Equal(t, s, s.With(dispatchtype.Forward), "adding a present base is idempotent")
	assert.Equal(t, "REQUEST|FORWARD", s.String())
	assert.Equal(t, []dispatchtype.Type{dispatchtype.Request, dispatchtype.Forward}, s.Bases())
}

func TestAllCompositeStates(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for i := 1; i < 16; i++ {
		s := dispatchtype.Type(i)
		seen[s.String()] = true
		assert.Equal(t, s, s.Normalize())
	}
	assert.Len(t, seen, 15)
	assert.Equal(t, "UNSET", dispatchtype.Unset.String())
	assert.Equal(t, dispatchtype.Request, dispatchtype.Unset.Normalize())
}

func TestParse(t *testing.T) {
	t.Parallel()

	ty, err := dispatchtype.Parse(" forward ")
	require.NoError(t, err)
	assert.Equal(t, dispatchtype.Forward, ty)

	_, err = dispatchtype.Parse("async")
	assert.ErrorIs(t, err, dispatchtype.ErrUnknownType)

	set, err := dispatchtype.ParseSet([]string{"INCLUDE", "error", "INCLUDE"})
	require.NoError(t, err)
	assert.Equal(t, dispatchtype.Include|dispatchtype.Error, set)

	set, err = dispatchtype.ParseSet(nil)
	require.NoError(t, err)
	assert.Equal(t, dispatchtype.Unset, set)
}

func TestIsActiveFor(t *testing.T) {
	t.Parallel()

	t.Run("empty set means request only", func(t *testing.T) {
		assert.True(t, dispatchtype.IsActiveFor(dispatchtype.Unset, dispatchtype.Request))
		assert.True(t, dispatchtype.IsActiveFor(dispatchtype.Unset, dispatchtype.Unset))
		assert.False(t, dispatchtype.IsActiveFor(dispatchtype.Unset, dispatchtype.Forward))
		assert.False(t, dispatchtype.IsActiveFor(dispatchtype.Unset, dispatchtype.Include))
		assert.False(t, dispatchtype.IsActiveFor(dispatchtype.Unset, dispatchtype.Error))
	})

	t.Run("declared subset", func(t *testing.T) {
		set := dispatchtype.Request | dispatchtype.Forward
		assert.True(t, dispatchtype.IsActiveFor(set, dispatchtype.Request))
		assert.True(t, dispatchtype.IsActiveFor(set, dispatchtype.Forward))
		assert.True(t, dispatchtype.IsActiveFor(set, dispatchtype.Request|dispatchtype.Forward))
		assert.False(t, dispatchtype.IsActiveFor(set, dispatchtype.Include))
		assert.False(t, dispatchtype.IsActiveFor(set, dispatchtype.Forward|dispatchtype.Include))
	})

	t.Run("unset state is request", func(t *testing.T) {
		assert.True(t, dispatchtype.IsActiveFor(dispatchtype.Request, dispatchtype.Unset))
		assert.False(t, dispatchtype.IsActiveFor(dispatchtype.Forward, dispatchtype.Unset))
	})
}
