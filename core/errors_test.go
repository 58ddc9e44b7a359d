package core_test

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/core"
)

func TestUnavailableError(t *testing.T) {
	t.Parallel()

	temp := core.Unavailable(30)
	assert.ErrorIs(t, temp, core.ErrUnavailable)
	assert.Equal(t, "handler is unavailable for 30s", temp.Error())
	assert.Equal(t, 30, temp.RetryAfter(time.Now()))

	perm := core.PermanentlyUnavailable()
	perm.Handler = "reports"
	assert.Equal(t, "reports is permanently unavailable", perm.Error())
	assert.Zero(t, perm.RetryAfter(time.Now()))

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	until := &core.UnavailableError{Until: now.Add(1500 * time.Millisecond)}
	assert.Equal(t, 2, until.RetryAfter(now))
	assert.Zero(t, until.RetryAfter(now.Add(time.Minute)))

	wrapped := errors.Join(errors.New("context"), temp)
	ue, ok := core.AsUnavailable(wrapped)
	require.True(t, ok)
	assert.Same(t, temp, ue)

	_, ok = core.AsUnavailable(errors.New("plain"))
	assert.False(t, ok)
}

func TestFault(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	err := core.Fault(boom)
	assert.ErrorIs(t, err, core.ErrRuntimeFault)
	assert.ErrorIs(t, err, boom)

	err = core.Fault("nil map")
	assert.ErrorIs(t, err, core.ErrRuntimeFault)
	assert.Contains(t, err.Error(), "nil map")
}

func TestStatusOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"http error", core.ErrForbidden, http.StatusForbidden},
		{"wrapped http error", errors.Join(errors.New("x"), core.NewHTTPError(http.StatusConflict, "conflict")), http.StatusConflict},
		{"temporary", core.Unavailable(5), http.StatusServiceUnavailable},
		{"permanent", core.PermanentlyUnavailable(), http.StatusNotFound},
		{"not found", errors.Join(core.ErrHandlerNotFound, errors.New("/x")), http.StatusNotFound},
		{"other", errors.New("boom"), http.StatusInternalServerError},
		{"fault", core.Fault("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, core.StatusOf(tt.err))
		})
	}
}
