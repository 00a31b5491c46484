package post

import (
	"sync"
	"testing"

	"github.com/bmizerany/assert"
)

func TestPost(t *testing.T) {
	var a int
	Post(func() {
		a = 1
	})
	Tick()
	if a != 1 {
		t.Errorf("t should be 1")
	}
}

func TestQueueOrderAndNesting(t *testing.T) {
	q := NewQueue()
	var seq []int
	q.Post(func() {
		seq = append(seq, 1)
		q.Post(func() {
			seq = append(seq, 3)
		})
	})
	q.Post(func() {
		seq = append(seq, 2)
	})

	select {
	case <-q.Notify():
	default:
		t.Fatalf("notify should be signaled")
	}
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 3, q.Tick())
	assert.Equal(t, []int{1, 2, 3}, seq)
	assert.Equal(t, 0, q.Len())
}

func TestQueuePanicDoesNotStopTick(t *testing.T) {
	q := NewQueue()
	ran := false
	q.Post(func() {
		panic("boom")
	})
	q.Post(func() {
		ran = true
	})
	q.Tick()
	assert.T(t, ran, "callback after a panicking one should still run")
}

func TestQueueConcurrentPost(t *testing.T) {
	q := NewQueue()
	var wg sync.WaitGroup
	count := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Post(func() {
					count++
				})
			}
		}()
	}
	wg.Wait()
	q.Tick()
	assert.Equal(t, 800, count)
}
