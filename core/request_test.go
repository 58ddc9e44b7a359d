package core_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/dispatchkit/core"
)

func TestRequestFacade_Paths(t *testing.T) {
	t.Parallel()

	hr := httptest.NewRequest(http.MethodGet, "/shop/a%20b/item?x=1", nil)
	r := core.NewRequestFacade(hr, "/shop/")
	r.SetMapping("/a b", "/item")

	assert.Equal(t, http.MethodGet, r.Method())
	assert.Equal(t, "/shop", r.ContextPath())
	assert.Equal(t, "/shop/a%20b/item", r.RequestURI())
	assert.Equal(t, "/a b/item", r.RelativePath())
	assert.Equal(t, "/a b", r.ServletPath())
	assert.Equal(t, "/item", r.PathInfo())
	assert.Equal(t, "x=1", r.QueryString())
	assert.Same(t, hr, r.HTTP())

	root := core.NewRequestFacade(httptest.NewRequest(http.MethodGet, "/shop", nil), "/shop")
	assert.Equal(t, "/", root.RelativePath())
}

func TestRequestFacade_Attributes(t *testing.T) {
	t.Parallel()

	r := core.NewRequestFacade(httptest.NewRequest(http.MethodGet, "/", nil), "")
	r.SetAttribute("b", 1)
	r.SetAttribute("a", 2)
	r.SetAttribute("b", 3)
	assert.Equal(t, []string{"b", "a"}, r.AttributeNames())
	assert.Equal(t, 3, r.Attribute("b"))

	r.SetAttribute("b", nil)
	assert.Nil(t, r.Attribute("b"))
	assert.Equal(t, []string{"a"}, r.AttributeNames())

	r.RemoveAttribute("missing")
	assert.Equal(t, []string{"a"}, r.AttributeNames())
}

func TestRequestFacade_SetContext(t *testing.T) {
	t.Parallel()

	type key struct{}
	r := core.NewRequestFacade(httptest.NewRequest(http.MethodGet, "/", nil), "")
	r.SetContext(context.WithValue(r.Context(), key{}, "v"))
	assert.Equal(t, "v", r.Context().Value(key{}))
	assert.Equal(t, "v", r.HTTP().Context().Value(key{}))
}
