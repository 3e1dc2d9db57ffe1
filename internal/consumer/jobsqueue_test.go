package consumer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobsQueue_PushPopRoundTrip(t *testing.T) {
	q := NewJobsQueue()
	job := NewJob(JobIdle, &Executor{GroupID: "g1"}, nil)

	q.Push("g1", job)
	got, ok := q.Pop("g1")
	require.True(t, ok)
	assert.Equal(t, job.ID, got.ID)
}

func TestJobsQueue_PopAnyDrainsAcrossGroups(t *testing.T) {
	q := NewJobsQueue()
	j1 := NewJob(JobIdle, &Executor{GroupID: "g1"}, nil)
	j2 := NewJob(JobIdle, &Executor{GroupID: "g2"}, nil)
	q.Push("g1", j1)
	q.Push("g2", j2)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		got, ok := q.PopAny()
		require.True(t, ok)
		seen[got.ID] = true
	}
	assert.True(t, seen[j1.ID])
	assert.True(t, seen[j2.ID])
}

func TestJobsQueue_WaitBlocksUntilGroupDrained(t *testing.T) {
	q := NewJobsQueue()
	job := NewJob(JobIdle, &Executor{GroupID: "g1"}, nil)
	q.Push("g1", job)

	done := make(chan struct{})
	go func() {
		q.Wait("g1")
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before the job was completed")
	case <-time.After(50 * time.Millisecond):
	}

	got, ok := q.Pop("g1")
	require.True(t, ok)
	q.Complete("g1", got)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not unblock after Complete")
	}
}

func TestJobsQueue_ClearDropsPendingButKeepsInFlight(t *testing.T) {
	q := NewJobsQueue()
	inFlightJob := NewJob(JobIdle, &Executor{GroupID: "g1"}, nil)
	q.Push("g1", inFlightJob)
	popped, ok := q.Pop("g1")
	require.True(t, ok)

	q.Push("g1", NewJob(JobIdle, &Executor{GroupID: "g1"}, nil))
	q.Clear("g1")

	assert.False(t, q.Empty("g1"), "in-flight job must still count")

	q.Complete("g1", popped)
	assert.True(t, q.Empty("g1"))
}

func TestJobsQueue_CloseUnblocksPop(t *testing.T) {
	q := NewJobsQueue()
	done := make(chan bool)
	go func() {
		_, ok := q.Pop("g1")
		done <- ok
	}()

	q.Close()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Close")
	}
}
