package run

import "sync/atomic"

// CancelToken is the cooperative stop signal of a run. It is set by the control
// surface and observed by the worker between clients and between download chunks.
type CancelToken struct {
	flag atomic.Bool
}

func (c *CancelToken) Cancel() {
	c.flag.Store(true)
}

func (c *CancelToken) Cancelled() bool {
	return c.flag.Load()
}

// Reset clears the token, only the start of a run may do this.
func (c *CancelToken) Reset() {
	c.flag.Store(false)
}
