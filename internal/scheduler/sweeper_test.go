package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type expirerMock struct{ mock.Mock }

func (m *expirerMock) ExpirePending(ctx context.Context, olderThan time.Duration) (int, error) {
	args := m.Called(ctx, olderThan)
	return args.Int(0), args.Error(1)
}

func TestSweeper_SweepOnce(t *testing.T) {
	m := new(expirerMock)
	m.On("ExpirePending", mock.Anything, 15*time.Minute).Return(3, nil).Once()
	m.On("ExpirePending", mock.Anything, 15*time.Minute).Return(1, errors.New("lock wait")).Once()
	s := NewSweeper(m, 15*time.Minute, time.Minute, nil)

	assert.Equal(t, 3, s.SweepOnce(context.Background()))
	assert.Equal(t, 1, s.SweepOnce(context.Background()))
	m.AssertExpectations(t)
}

type countingExpirer struct{ n atomic.Int32 }

func (c *countingExpirer) ExpirePending(context.Context, time.Duration) (int, error) {
	c.n.Add(1)
	return 0, nil
}

func TestSweeper_RunStopsWithContext(t *testing.T) {
	c := &countingExpirer{}
	s := NewSweeper(c, time.Minute, 5*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return c.n.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeper_Disabled(t *testing.T) {
	c := &countingExpirer{}
	NewSweeper(c, 0, time.Millisecond, nil).Run(context.Background())

	assert.Zero(t, c.n.Load())
}
