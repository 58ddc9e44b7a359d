package core_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/core"
)

type pooled struct {
	core.SingleInstance
	core.HandlerFunc
}

func TestConfig(t *testing.T) {
	t.Parallel()

	params := []core.Param{{Name: "b", Value: "2"}, {Name: "a", Value: "1"}}
	cfg := core.NewConfig("greeting", params...)
	params[0].Value = "changed"

	assert.Equal(t, "greeting", cfg.Name())
	assert.Equal(t, []string{"b", "a"}, cfg.InitParameterNames())
	v, ok := cfg.InitParameter("b")
	assert.True(t, ok)
	assert.Equal(t, "2", v)
	_, ok = cfg.InitParameter("missing")
	assert.False(t, ok)
}

func TestIsSingleInstance(t *testing.T) {
	t.Parallel()

	assert.False(t, core.IsSingleInstance(core.HandlerFunc(nil)))
	assert.True(t, core.IsSingleInstance(pooled{}))
}

func TestFromHTTP(t *testing.T) {
	t.Parallel()

	h := core.FromHTTP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(r.URL.Path))
	}))

	rec := httptest.NewRecorder()
	w := core.NewResponseFacade(rec)
	r := core.NewRequestFacade(httptest.NewRequest(http.MethodGet, "/tea", nil), "")
	require.NoError(t, h.Serve(w, r))
	require.NoError(t, w.Finish())
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "/tea", rec.Body.String())
}

func TestFromMiddleware(t *testing.T) {
	t.Parallel()

	type key struct{}
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Middleware", "1")
			if r.Header.Get("X-Block") != "" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), key{}, "mw")))
		})
	}
	filter := core.FromMiddleware(mw)
	boom := errors.New("boom")

	t.Run("runs the chain inside the middleware", func(t *testing.T) {
		t.Parallel()
		w := core.NewResponseFacade(httptest.NewRecorder())
		r := core.NewRequestFacade(httptest.NewRequest(http.MethodGet, "/", nil), "")

		var seen any
		err := filter.DoFilter(w, r, core.ChainFunc(func(_ core.Response, r core.Request) error {
			seen = r.Context().Value(key{})
			return boom
		}))
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, "mw", seen)
		assert.Equal(t, "1", w.Header().Get("X-Middleware"))
	})

	t.Run("middleware can stop the chain", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		w := core.NewResponseFacade(rec)
		hr := httptest.NewRequest(http.MethodGet, "/", nil)
		hr.Header.Set("X-Block", "1")
		r := core.NewRequestFacade(hr, "")

		called := false
		err := filter.DoFilter(w, r, core.ChainFunc(func(core.Response, core.Request) error {
			called = true
			return nil
		}))
		require.NoError(t, err)
		assert.False(t, called)
		assert.Equal(t, http.StatusForbidden, w.Status())
	})
}
