package app

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmelnik/streamcast/internal/core"
)

var _ core.SignalConnection = (*fakeConn)(nil)

// fakeConn records every frame so tests can assert on delivery.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func newFakeConn() *fakeConn { return &fakeConn{} }

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// sent decodes every recorded frame.
func (c *fakeConn) sent(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) last(t *testing.T) map[string]any {
	t.Helper()
	msgs := c.sent(t)
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

func (c *fakeConn) countOfType(t *testing.T, typ string) int {
	t.Helper()
	n := 0
	for _, m := range c.sent(t) {
		if m["type"] == typ {
			n++
		}
	}
	return n
}
