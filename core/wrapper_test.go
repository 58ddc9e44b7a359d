package core_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatchkit/core"
)

func newFacade() *core.RequestFacade {
	return core.NewRequestFacade(httptest.NewRequest(http.MethodGet, "/", nil), "")
}

func TestInsertRequest(t *testing.T) {
	t.Parallel()

	t.Run("directly over the facade", func(t *testing.T) {
		t.Parallel()
		facade := newFacade()
		layer := core.NewContainerRequestWrapper(nil)

		outer := core.InsertRequest(facade, layer)
		assert.Same(t, layer, outer)
		assert.Same(t, facade, layer.Wrapped())
	})

	t.Run("below user layers", func(t *testing.T) {
		t.Parallel()
		facade := newFacade()
		user := core.NewRequestWrapper(facade)
		layer := core.NewContainerRequestWrapper(nil)

		outer := core.InsertRequest(user, layer)
		assert.Same(t, user, outer)
		assert.Same(t, layer, user.Wrapped())
		assert.Same(t, facade, layer.Wrapped())
	})

	t.Run("above earlier container layers", func(t *testing.T) {
		t.Parallel()
		facade := newFacade()
		first := core.NewContainerRequestWrapper(facade)
		user := core.NewRequestWrapper(first)
		second := core.NewContainerRequestWrapper(nil)

		outer := core.InsertRequest(user, second)
		assert.Same(t, user, outer)
		assert.Same(t, second, user.Wrapped())
		assert.Same(t, first, second.Wrapped())
	})
}

func TestRemoveRequest(t *testing.T) {
	t.Parallel()

	facade := newFacade()
	layer := core.NewContainerRequestWrapper(facade)
	user := core.NewRequestWrapper(layer)

	assert.True(t, core.ContainsLayer[core.Request](user, layer.Token()))
	assert.Same(t, user, core.RemoveRequest(user, core.NewToken()), "unknown token")

	outer := core.RemoveRequest(user, layer.Token())
	assert.Same(t, user, outer)
	assert.Same(t, facade, user.Wrapped())
	assert.False(t, core.ContainsLayer[core.Request](user, layer.Token()))

	assert.Same(t, facade, core.RemoveRequest(user, user.Token()))
}

func TestResponseLayers(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	facade := core.NewResponseFacade(rec)
	user := core.NewResponseWrapper(facade)
	layer := core.NewContainerResponseWrapper(nil)

	outer := core.InsertResponse(user, layer)
	require.Same(t, user, outer)
	assert.Same(t, layer, user.Wrapped())

	_, err := outer.Write([]byte("through"))
	require.NoError(t, err)
	outer.WriteHeader(http.StatusCreated)
	require.NoError(t, outer.Flush())
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "through", rec.Body.String())
	assert.True(t, outer.Committed())

	assert.Same(t, user, core.RemoveResponse(outer, layer.Token()))
	assert.Same(t, facade, user.Wrapped())

	require.NoError(t, user.Close())
	assert.True(t, facade.Finished())
}

func TestRequestWrapper_Delegates(t *testing.T) {
	t.Parallel()

	facade := newFacade()
	w := core.NewRequestWrapper(facade)
	w.SetAttribute("k", "v")
	assert.Equal(t, "v", facade.Attribute("k"))
	assert.Equal(t, []string{"k"}, w.AttributeNames())
	w.RemoveAttribute("k")
	assert.Nil(t, facade.Attribute("k"))
	assert.Equal(t, facade.RequestURI(), w.RequestURI())
	assert.NotEqual(t, w.Token(), core.NewRequestWrapper(facade).Token())
}
