// Package post queues callbacks onto a single goroutine.
//
// Each Queue is drained by exactly one goroutine calling Tick, so callbacks posted to the same
// Queue never run concurrently.
package post

import (
	"sync"

	"github.com/xiaonanln/sectorworld/engine/gwutils"
)

// PostCallback is the type of functions to be posted
type PostCallback func()

// Queue holds callbacks until its owner goroutine runs them
type Queue struct {
	lock      sync.Mutex
	callbacks []PostCallback
	notify    chan struct{}
}

// NewQueue creates an empty Queue
func NewQueue() *Queue {
	return &Queue{
		notify: make(chan struct{}, 1),
	}
}

// Post a callback which will be executed by the goroutine owning the queue
//
// Post might be called from other goroutine, so we use a lock to protect the data
func (q *Queue) Post(f PostCallback) {
	q.lock.Lock()
	q.callbacks = append(q.callbacks, f)
	q.lock.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Notify returns a channel that is signaled after callbacks are posted
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

// Len returns the number of callbacks waiting to run
func (q *Queue) Len() int {
	q.lock.Lock()
	n := len(q.callbacks)
	q.lock.Unlock()
	return n
}

// Tick runs all posted functions, including the ones posted while running, and returns how many ran
func (q *Queue) Tick() (n int) {
	for { // loop until there is no callbacks posted anymore
		q.lock.Lock()
		if len(q.callbacks) == 0 {
			q.lock.Unlock()
			break
		}
		// switch callbacks in locked section
		callbacksCopy := q.callbacks
		q.callbacks = make([]PostCallback, 0, len(callbacksCopy))
		q.lock.Unlock()

		for _, f := range callbacksCopy {
			gwutils.RunPanicless(f)
		}
		n += len(callbacksCopy)
	}
	return
}

var defaultQueue = NewQueue()

// Post a callback to the main server routine
func Post(f PostCallback) {
	defaultQueue.Post(f)
}

// Tick is called by the main server routine to run all posted functions
func Tick() int {
	return defaultQueue.Tick()
}

// Notify returns the notify channel of the main server queue
func Notify() <-chan struct{} {
	return defaultQueue.Notify()
}
