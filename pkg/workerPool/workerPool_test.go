package workerpool

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestJobsRun(t *testing.T) {
	p := New(Config{WorkerCount: 4, Logger: quietLogger()})
	defer p.Close()

	var ran atomic.Int64
	for i := 0; i < 100; i++ {
		err := p.Submit(Job{Name: "count", Run: func() error {
			ran.Add(1)
			return nil
		}})
		require.NoError(t, err)
	}
	p.Drain()
	assert.Equal(t, int64(100), ran.Load())
}

func TestFailedJobDoesNotStopWorkers(t *testing.T) {
	p := New(Config{WorkerCount: 1, Logger: quietLogger()})
	defer p.Close()

	require.NoError(t, p.Submit(Job{Name: "boom", Run: func() error {
		return errors.New("boom")
	}}))

	var ran atomic.Bool
	require.NoError(t, p.Submit(Job{Name: "after", Run: func() error {
		ran.Store(true)
		return nil
	}}))

	p.Drain()
	assert.True(t, ran.Load())
}

func TestFullQueueRejects(t *testing.T) {
	p := New(Config{WorkerCount: 1, Buffer: 1, Logger: quietLogger()})
	defer p.Close()

	block := make(chan struct{})
	// Occupy the single worker.
	require.NoError(t, p.Submit(Job{Name: "block", Run: func() error {
		<-block
		return nil
	}}))

	// Fill the single buffer slot, then overflow it.
	var err error
	for i := 0; i < 3; i++ {
		err = p.Submit(Job{Name: "fill", Run: func() error { return nil }})
		if err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, ErrQueueFull)

	close(block)
	p.Drain()
}

func TestSubmitAfterClose(t *testing.T) {
	p := New(Config{WorkerCount: 1, Logger: quietLogger()})
	p.Close()
	p.Close() // idempotent

	err := p.Submit(Job{Name: "late", Run: func() error { return nil }})
	assert.ErrorIs(t, err, ErrClosed)
}
