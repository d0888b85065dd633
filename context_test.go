package wrtc

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEngine counts Close calls. It cannot create connections.
type stubEngine struct {
	closes atomic.Int32
}

func (e *stubEngine) Name() string { return "stub" }

func (e *stubEngine) NewPeerConnection(Configuration, EngineObserver) (NativePeerConnection, error) {
	return nil, errors.New("stub engine has no connections")
}

func (e *stubEngine) Close() error {
	e.closes.Add(1)
	return nil
}

type closer struct {
	closes int
	lease  *contextLease
}

func (c *closer) Close() error {
	c.closes++
	return c.lease.release()
}

func TestContextRefcount(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	eng := &stubEngine{}
	c := NewContext(eng, WithLogger(quietLogger()), WithMetrics(m))
	t.Cleanup(func() { _ = c.loop.Close() })

	assert.Equal(t, 1, c.Refs())
	require.NoError(t, c.Acquire())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ContextRefs))

	require.NoError(t, c.Release())
	assert.Zero(t, eng.closes.Load())
	require.NoError(t, c.Release())
	assert.EqualValues(t, 1, eng.closes.Load(), "engine closes when the last reference goes")

	assert.ErrorIs(t, c.Acquire(), ErrInvalidState)
	assert.Panics(t, func() { _ = c.Release() })
}

func TestContextLeaseReleasedOnce(t *testing.T) {
	eng := &stubEngine{}
	c := NewContext(eng, WithLogger(quietLogger()))
	t.Cleanup(func() { _ = c.loop.Close() })

	holder := &closer{}
	l, err := c.lease(holder)
	require.NoError(t, err)
	holder.lease = l
	assert.Equal(t, 2, c.Refs())

	require.NoError(t, l.release())
	require.NoError(t, l.release())
	assert.Equal(t, 1, c.Refs())
}

func TestContextShutdown(t *testing.T) {
	eng := &stubEngine{}
	c := NewContext(eng, WithLogger(quietLogger()))

	holders := []*closer{{}, {}}
	for _, h := range holders {
		l, err := c.lease(h)
		require.NoError(t, err)
		h.lease = l
	}
	assert.Equal(t, 3, c.Refs())

	require.NoError(t, c.Shutdown())
	for _, h := range holders {
		assert.Equal(t, 1, h.closes)
	}
	assert.Zero(t, c.Refs())
	assert.EqualValues(t, 1, eng.closes.Load())

	select {
	case <-c.Loop().Done():
	default:
		t.Fatal("owned loop still running after Shutdown")
	}

	require.NoError(t, c.Shutdown())
	assert.EqualValues(t, 1, eng.closes.Load())

	_, err := c.lease(&closer{})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestContextSharedLoopSurvivesShutdown(t *testing.T) {
	l := newTestLoop(t)
	c := NewContext(&stubEngine{}, WithLogger(quietLogger()), WithLoop(l))
	require.NoError(t, c.Shutdown())

	q := l.NewQueue("q")
	require.NoError(t, q.Post(func() {}))
	flush(t, q)
}
