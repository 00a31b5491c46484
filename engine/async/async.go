// Package async runs blocking jobs on a fixed set of worker goroutines.
//
// Jobs appended with the same group always land on the same worker, so they run one at a time in
// the order they were appended. Callbacks are posted back to a post.Queue.
package async

import (
	"hash/fnv"
	"sync"

	"github.com/pkg/errors"
	"github.com/xiaonanln/sectorworld/engine/consts"
	"github.com/xiaonanln/sectorworld/engine/gwlog"
	"github.com/xiaonanln/sectorworld/engine/gwutils"
	"github.com/xiaonanln/sectorworld/engine/post"
)

// ErrPoolClosed is returned when appending jobs to a pool after Shutdown
var ErrPoolClosed = errors.New("async pool is closed")

// AsyncCallback receives the result of an AsyncRoutine
type AsyncCallback func(res interface{}, err error)

// AsyncRoutine is a blocking job
type AsyncRoutine func() (res interface{}, err error)

type asyncJobItem struct {
	group    string
	routine  AsyncRoutine
	callback AsyncCallback
}

type asyncJobWorker struct {
	jobQueue chan asyncJobItem
}

// Pool is a fixed set of job workers
type Pool struct {
	lock     sync.RWMutex
	closed   bool
	workers  []*asyncJobWorker
	callback *post.Queue
	running  sync.WaitGroup
}

// NewPool starts numWorkers workers; callbacks are posted to callbackQueue
func NewPool(numWorkers int, callbackQueue *post.Queue) *Pool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	p := &Pool{
		workers:  make([]*asyncJobWorker, numWorkers),
		callback: callbackQueue,
	}
	for i := range p.workers {
		w := &asyncJobWorker{
			jobQueue: make(chan asyncJobItem, consts.ASYNC_JOB_QUEUE_MAXLEN),
		}
		p.workers[i] = w
		p.running.Add(1)
		go p.loop(w)
	}
	return p
}

// NumWorkers returns the number of workers
func (p *Pool) NumWorkers() int {
	return len(p.workers)
}

func (p *Pool) workerOf(group string) *asyncJobWorker {
	h := fnv.New32a()
	h.Write([]byte(group))
	return p.workers[h.Sum32()%uint32(len(p.workers))]
}

// AppendJob queues routine on the worker serving group
//
// callback may be nil. A non-nil callback runs on the callback queue's goroutine.
func (p *Pool) AppendJob(group string, routine AsyncRoutine, callback AsyncCallback) error {
	p.lock.RLock()
	defer p.lock.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	w := p.workerOf(group)
	if len(w.jobQueue) >= cap(w.jobQueue)/2 {
		gwlog.Warnf("async: job queue of group %s is getting long: %d", group, len(w.jobQueue))
	}
	w.jobQueue <- asyncJobItem{group: group, routine: routine, callback: callback}
	return nil
}

func (p *Pool) loop(w *asyncJobWorker) {
	defer p.running.Done()
	for item := range w.jobQueue {
		var res interface{}
		err := gwutils.CatchPanic(func() (err error) {
			res, err = item.routine()
			return
		})
		if err != nil && consts.DEBUG_CLIENTS {
			gwlog.Debugf("async: job of group %s failed: %v", item.group, err)
		}
		p.deliver(item.callback, res, err)
	}
}

func (p *Pool) deliver(cb AsyncCallback, res interface{}, err error) {
	if cb == nil {
		return
	}
	if p.callback == nil {
		cb(res, err)
		return
	}
	p.callback.Post(func() {
		cb(res, err)
	})
}

// Shutdown stops accepting jobs and waits for queued jobs to finish
func (p *Pool) Shutdown() {
	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return
	}
	p.closed = true
	for _, w := range p.workers {
		close(w.jobQueue)
	}
	p.lock.Unlock()

	p.running.Wait()
}
