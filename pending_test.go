package wrtc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestPendingSettle(t *testing.T) {
	q := newTestLoop(t).NewQueue("q")
	p := newPending[int](q)

	var order []string
	p.Then(func(v int, err error) {
		order = append(order, "first")
		assert.Equal(t, 42, v)
		assert.NoError(t, err)
	})
	settle(q, p, func() (int, error) { return 42, nil })
	p.Then(func(int, error) { order = append(order, "late") })

	v, err := p.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	flush(t, q)
	assert.Equal(t, []string{"first", "late"}, order)
}

func TestPendingRejected(t *testing.T) {
	q := newTestLoop(t).NewQueue("q")
	boom := errors.New("boom")
	p := rejected[string](q, boom)

	select {
	case <-p.Done():
	default:
		t.Fatal("rejected pending should already be done")
	}
	_, err := p.Wait(waitCtx(t))
	assert.ErrorIs(t, err, boom)

	got := make(chan error, 1)
	p.Then(func(_ string, err error) { got <- err })
	assert.ErrorIs(t, <-got, boom)
}

func TestPendingResolveTwicePanics(t *testing.T) {
	q := newTestLoop(t).NewQueue("q")
	p := newPending[int](q)
	p.resolve(1, nil)
	assert.Panics(t, func() { p.resolve(2, nil) })
}

func TestPendingSettleAfterLoopClosed(t *testing.T) {
	l := NewLoop(WithLogger(quietLogger()))
	q := l.NewQueue("q")
	p := newPending[int](q)
	require.NoError(t, l.Close())

	settle(q, p, func() (int, error) {
		t.Fatal("settle ran its continuation on a closed loop")
		return 0, nil
	})
	_, err := p.Wait(waitCtx(t))
	assert.ErrorIs(t, err, ErrLoopClosed)
}

func TestPendingWaitHonorsContext(t *testing.T) {
	q := newTestLoop(t).NewQueue("q")
	p := newPending[int](q)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	p.resolve(0, nil)
}
