package filterchain

import "github.com/dmitrymomot/dispatchkit/core"

// Chain runs a list of filters and then the target handler. Each DoFilter
// call advances to the next element; calls past the target do nothing.
type Chain struct {
	filters []*Registration
	target  core.Handler
	pos     int
}

// New returns a chain running filters in order and then target.
// target may be nil, in which case the chain ends after the last filter.
func New(filters []*Registration, target core.Handler) *Chain {
	return &Chain{filters: filters, target: target}
}

// DoFilter invokes the next filter, or the target once every filter ran.
func (c *Chain) DoFilter(w core.Response, r core.Request) error {
	if c.pos < len(c.filters) {
		reg := c.filters[c.pos]
		c.pos++
		f, err := reg.Filter()
		if err != nil {
			return err
		}
		return f.DoFilter(w, r, c)
	}
	if c.pos > len(c.filters) || c.target == nil {
		return nil
	}
	c.pos++
	return c.target.Serve(w, r)
}

// Len returns the number of filters in the chain.
func (c *Chain) Len() int { return len(c.filters) }

var _ core.FilterChain = (*Chain)(nil)
