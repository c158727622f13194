package consumer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aggregator/pkg/models"
)

func never() bool { return false }

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()

	q.Push(models.Event{EventID: "evt-1"})
	q.Push(models.Event{EventID: "evt-2"})
	q.Push(models.Event{EventID: "evt-3"})

	for _, want := range []string{"evt-1", "evt-2", "evt-3"} {
		ev, ok := q.Pop(never)
		require.True(t, ok)
		assert.Equal(t, want, ev.EventID)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := NewQueue()

	got := make(chan models.Event, 1)
	go func() {
		ev, ok := q.Pop(never)
		if ok {
			got <- ev
		}
	}()

	select {
	case <-got:
		t.Fatal("Pop returned before anything was pushed")
	case <-time.After(50 * time.Millisecond):
	}

	q.Push(models.Event{EventID: "evt-1"})

	select {
	case ev := <-got:
		assert.Equal(t, "evt-1", ev.EventID)
	case <-time.After(time.Second):
		t.Fatal("Pop did not observe the push")
	}
}

func TestQueue_PopObservesStop(t *testing.T) {
	q := NewQueue()

	stop := make(chan struct{})
	stopped := func() bool {
		select {
		case <-stop:
			return true
		default:
			return false
		}
	}

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop(stopped)
		done <- ok
	}()

	close(stop)
	q.Wake()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pop did not observe stop")
	}
}

// Races a blocked Pop against a concurrent stop-and-wake many times over.
// Every Wake must land either before the waiter checks the stop flag or
// after it has parked in Wait; in both cases Pop has to return.
func TestQueue_WakeRacesWithPop(t *testing.T) {
	for i := 0; i < 2000; i++ {
		q := NewQueue()

		stop := make(chan struct{})
		stopped := func() bool {
			select {
			case <-stop:
				return true
			default:
				return false
			}
		}

		done := make(chan struct{})
		go func() {
			q.Pop(stopped)
			close(done)
		}()

		close(stop)
		q.Wake()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("iteration %d: Pop never observed stop", i)
		}
	}
}

func TestQueue_StoppedPopLeavesItems(t *testing.T) {
	q := NewQueue()
	q.Push(models.Event{EventID: "evt-1"})

	_, ok := q.Pop(func() bool { return true })
	assert.False(t, ok)
	assert.Equal(t, 1, q.Len(), "stop does not drop queued items")
}
