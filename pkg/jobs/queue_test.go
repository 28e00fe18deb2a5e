package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeting struct {
	To string
}

func TestQueueDeliversTypedPayload(t *testing.T) {
	var mu sync.Mutex
	var got []greeting
	done := make(chan struct{}, 1)

	q := NewQueue("greetings", func(_ context.Context, job Job[greeting]) error {
		mu.Lock()
		got = append(got, job.Payload)
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job[greeting]{ID: "j-1", Payload: greeting{To: "ana"}}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was never handled")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "ana", got[0].To)
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{}, 1)

	q := NewQueue("flaky", func(_ context.Context, job Job[greeting]) error {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			return errors.New("transient")
		}
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 5, RetryDelay: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job[greeting]{ID: "j-1", Payload: greeting{To: "ben"}}))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job never succeeded after retries")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts)
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(_ context.Context, _ Job[greeting]) error { return nil }, QueueConfig{})

	err := q.Enqueue(Job[greeting]{ID: "j-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not started")
}
