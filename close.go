package kvgo

// Close stops background maintenance and releases the tier arenas.
// Operations after Close see ErrClosed (or miss). Close is idempotent.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	if c.closed.Swap(true) {
		return nil
	}

	if c.maintCancel != nil {
		c.maintCancel()
		<-c.maintDone
	}

	var firstErr error
	if err := c.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	c.hotPurge()
	return firstErr
}
