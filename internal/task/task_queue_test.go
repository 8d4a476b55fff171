package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDualQueue_OrderingWithinQueue(t *testing.T) {
	q, _ := newTestQueue(100, QueueConfig{PollWait: time.Millisecond})

	priorities := []int{5, 1, 5, 3, 1, 10}
	tasks := make([]*Task, len(priorities))
	for i, p := range priorities {
		tasks[i] = newServiceTask("u1", "log_service", p)
		require.NoError(t, q.EnqueueInteractive(tasks[i]))
	}

	want := []*Task{tasks[1], tasks[4], tasks[3], tasks[0], tasks[2], tasks[5]}
	ctx := context.Background()
	for i, expected := range want {
		got, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Same(t, expected, got, "position %d", i)
	}
}

func TestDualQueue_SubmitTimeBeatsInsertionOrder(t *testing.T) {
	q, _ := newTestQueue(100, QueueConfig{})

	later := newServiceTask("u1", "log_service", 10)
	earlier := newServiceTask("u1", "log_service", 10)
	earlier.SubmitTime = later.SubmitTime.Add(-time.Second)

	require.NoError(t, q.EnqueueInteractive(later))
	require.NoError(t, q.EnqueueInteractive(earlier))

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Same(t, earlier, got)
}

func TestDualQueue_InteractivePreferred(t *testing.T) {
	q, _ := newTestQueue(100, QueueConfig{PollWait: time.Hour, BackgroundEvery: 0})

	bg := newServiceTask("u1", "log_service", 1)
	fg := newServiceTask("u1", "log_service", 50)
	require.NoError(t, q.EnqueueBackground(bg))
	require.NoError(t, q.EnqueueInteractive(fg))

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Same(t, fg, got)
	assert.Equal(t, QueueInteractive, got.Queue())
}

func TestDualQueue_BackgroundAfterPollWait(t *testing.T) {
	q, _ := newTestQueue(100, QueueConfig{PollWait: 20 * time.Millisecond})

	bg := newServiceTask("u1", "log_service", BackgroundPriority)
	require.NoError(t, q.EnqueueBackground(bg))

	start := time.Now()
	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Same(t, bg, got)
	assert.Equal(t, QueueBackground, got.Queue())
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestDualQueue_NoStarvation(t *testing.T) {
	q, _ := newTestQueue(1000, QueueConfig{PollWait: time.Hour, BackgroundEvery: 3})

	bg := newServiceTask("u1", "log_service", BackgroundPriority)
	require.NoError(t, q.EnqueueBackground(bg))
	for i := 0; i < 10; i++ {
		require.NoError(t, q.EnqueueInteractive(newServiceTask("u1", "log_service", 1)))
	}

	position := -1
	for i := 0; i < 11; i++ {
		got, err := q.Dequeue(context.Background())
		require.NoError(t, err)
		if got == bg {
			position = i
			break
		}
	}
	assert.Equal(t, 3, position)
}

func TestDualQueue_WakesWaitingDequeue(t *testing.T) {
	q, _ := newTestQueue(10, QueueConfig{PollWait: time.Hour})

	result := make(chan *Task, 1)
	go func() {
		got, err := q.Dequeue(context.Background())
		if err == nil {
			result <- got
		}
	}()

	time.Sleep(10 * time.Millisecond)
	want := newServiceTask("u1", "log_service", 10)
	require.NoError(t, q.EnqueueInteractive(want))

	got, ok := waitFor(result, 500*time.Millisecond)
	require.True(t, ok, "dequeue was not woken by enqueue")
	assert.Same(t, want, got)
}

func TestDualQueue_DequeueMarksInFlight(t *testing.T) {
	q, admission := newTestQueue(10, QueueConfig{})

	require.NoError(t, q.EnqueueInteractive(newServiceTask("u1", "log_service", 10)))
	assert.Equal(t, 0, admission.InFlight("u1"))

	_, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, admission.InFlight("u1"))
}

func TestDualQueue_RequeueRestoresPendingState(t *testing.T) {
	q, admission := newTestQueue(10, QueueConfig{})

	first := newServiceTask("u1", "scrape_service", 10)
	second := newServiceTask("u1", "log_service", 10)
	require.NoError(t, q.EnqueueInteractive(first))
	require.NoError(t, q.EnqueueInteractive(second))

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Same(t, first, got)
	require.Equal(t, 1, admission.InFlight("u1"))

	require.NoError(t, q.Requeue(got))
	assert.Equal(t, 0, admission.InFlight("u1"))
	assert.Equal(t, 1, got.Requeues())

	// the requeued task keeps its place ahead of later submissions
	again, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, 1, admission.InFlight("u1"))
}

func TestDualQueue_RequeueMovesBackgroundToInteractive(t *testing.T) {
	q, _ := newTestQueue(10, QueueConfig{PollWait: time.Hour})

	bg := newServiceTask("u1", "scrape_service", BackgroundPriority)
	require.NoError(t, q.EnqueueBackground(bg))

	// force the background turn by closing the poll window
	q.config.PollWait = 0
	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Same(t, bg, got)

	require.NoError(t, q.Requeue(got))
	interactive, background := q.Len()
	assert.Equal(t, 1, interactive)
	assert.Equal(t, 0, background)
}

func TestDualQueue_QuotaRejection(t *testing.T) {
	q, admission := newTestQueue(1, QueueConfig{})
	admission.Acquire("u1")

	err := q.EnqueueInteractive(newServiceTask("u1", "log_service", 10))
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	err = q.EnqueueBackground(newServiceTask("u1", "log_service", 10))
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	interactive, background := q.Len()
	assert.Zero(t, interactive)
	assert.Zero(t, background)

	assert.NoError(t, q.EnqueueInteractive(newServiceTask(SystemUserID, "log_service", 10)))
}

func TestDualQueue_LimitTwoScenario(t *testing.T) {
	q, admission := newTestQueue(2, QueueConfig{})
	ctx := context.Background()

	t1 := newServiceTask("u1", "log_service", 10)
	t2 := newServiceTask("u1", "log_service", 10)
	require.NoError(t, q.EnqueueInteractive(t1))
	require.NoError(t, q.EnqueueInteractive(t2))

	got1, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Same(t, t1, got1)
	got2, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Same(t, t2, got2)

	// both are executing, so the user is at the limit
	err = q.EnqueueInteractive(newServiceTask("u1", "log_service", 10))
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	// the first completes and frees a slot
	admission.Release("u1")

	t4 := newServiceTask("u1", "log_service", 10)
	t5 := newServiceTask("u1", "log_service", 10)
	require.NoError(t, q.EnqueueInteractive(t4))
	require.NoError(t, q.EnqueueInteractive(t5))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Same(t, t4, got)
}

func TestDualQueue_Close(t *testing.T) {
	q, _ := newTestQueue(10, QueueConfig{})

	require.NoError(t, q.EnqueueInteractive(newServiceTask("u1", "log_service", 10)))
	require.NoError(t, q.EnqueueBackground(newServiceTask("u1", "log_service", 100)))

	abandoned := q.Close()
	assert.Len(t, abandoned, 2)
	assert.True(t, q.Closed())
	assert.Nil(t, q.Close(), "second close is a no-op")

	_, err := q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrQueueShutdown)
	assert.ErrorIs(t, q.EnqueueInteractive(newServiceTask("u1", "log_service", 10)), ErrQueueShutdown)
	assert.ErrorIs(t, q.Requeue(newServiceTask("u1", "log_service", 10)), ErrQueueShutdown)
}

func TestDualQueue_CloseWakesWaiters(t *testing.T) {
	q, _ := newTestQueue(10, QueueConfig{PollWait: time.Hour})

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := q.Dequeue(context.Background())
			errs <- err
		}()
	}

	time.Sleep(10 * time.Millisecond)
	q.Close()

	for i := 0; i < 3; i++ {
		err, ok := waitFor(errs, 500*time.Millisecond)
		require.True(t, ok, "waiter %d was not woken", i)
		assert.ErrorIs(t, err, ErrQueueShutdown)
	}
}

func TestDualQueue_DequeueHonorsContext(t *testing.T) {
	q, _ := newTestQueue(10, QueueConfig{PollWait: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestDualQueue_RejectsInvalidTask(t *testing.T) {
	q, _ := newTestQueue(10, QueueConfig{})

	err := q.EnqueueInteractive(New("u1", "", nil))
	assert.ErrorIs(t, err, ErrInvalidTask)
	assert.ErrorIs(t, q.EnqueueInteractive(nil), ErrInvalidTask)
}
