package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/session-auth/internal/logger"
)

type countingPurger struct {
	calls atomic.Int32
	fail  bool
}

func (p *countingPurger) PurgeExpired(context.Context) (int64, error) {
	p.calls.Add(1)
	if p.fail {
		return 0, errors.New("db gone")
	}
	return 3, nil
}

func TestSweep(t *testing.T) {
	for _, fail := range []bool{false, true} {
		p := &countingPurger{fail: fail}
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			sweep(ctx, p, 5*time.Millisecond, logger.Discard())
			close(done)
		}()

		assert.Eventually(t, func() bool { return p.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("sweep did not stop after cancel")
		}
	}
}

func TestSweepRejectsNonPositiveInterval(t *testing.T) {
	p := &countingPurger{}
	assert.NotPanics(t, func() { sweep(context.Background(), p, 0, logger.Discard()) })
	assert.Zero(t, p.calls.Load())
}
