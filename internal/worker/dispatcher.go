package worker

import (
	"container/list"
	"context"
	"sync"
)

type clientQueue struct {
	jobs     []Job
	enqueued bool
}

// Dispatcher runs blocking jobs on a bounded pool. Jobs are taken round-robin
// across clients so one caller with many requests cannot starve the others.
type Dispatcher struct {
	pool     *jobChannelPool
	JobQueue chan Job // interface for outer jobs get in the dispatcher

	mu        sync.Mutex
	queues    map[string]*clientQueue // job queue for each client
	ready     *list.List              // round-robin order of client keys
	positions map[string]*list.Element

	quit     chan struct{}
	stopOnce sync.Once
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1
	}
	d := &Dispatcher{
		pool:      newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.WorkerIdleTimeout),
		JobQueue:  make(chan Job, queueSize),
		queues:    make(map[string]*clientQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		quit:      make(chan struct{}),
	}
	d.pool.warm()
	go d.run()
	return d
}

// Submit queues run for the client tagged on ctx and waits for its result.
// It fails fast with ErrDispatcherBusy when the queue is full.
func (d *Dispatcher) Submit(ctx context.Context, jobType JobType, run func(context.Context) (string, error)) (string, error) {
	job := Job{
		Type:   jobType,
		Client: ClientFromContext(ctx),
		ctx:    ctx,
		run:    run,
		result: make(chan Result, 1),
	}
	if !d.offer(job) {
		return "", ErrDispatcherBusy
	}
	select {
	case res := <-job.result:
		return res.Text, res.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// offer puts job on JobQueue unless the dispatcher is stopped or full.
func (d *Dispatcher) offer(job Job) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.quit:
		return false
	default:
	}
	select {
	case d.JobQueue <- job:
		return true
	default:
		debugLog("[dispatcher] queue full, reject %s for %q", job.Type, job.Client)
		return false
	}
}

// Stop ends dispatching. Jobs already handed to workers still complete,
// queued ones are answered with ErrDispatcherBusy.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		close(d.quit)
		d.mu.Unlock()
		d.pool.stop()
	})
}

// failPending answers every job that never reached a worker.
func (d *Dispatcher) failPending() {
	var pending []Job
	d.mu.Lock()
drain:
	for {
		select {
		case job := <-d.JobQueue:
			pending = append(pending, job)
		default:
			break drain
		}
	}
	for elem := d.ready.Front(); elem != nil; elem = elem.Next() {
		pending = append(pending, d.queues[elem.Value.(string)].jobs...)
	}
	d.queues = make(map[string]*clientQueue)
	d.positions = make(map[string]*list.Element)
	d.ready.Init()
	d.mu.Unlock()

	if len(pending) > 0 {
		debugLog("[dispatcher] stopped with %d queued jobs", len(pending))
	}
	for _, job := range pending {
		job.result <- Result{Err: ErrDispatcherBusy}
	}
}

func (d *Dispatcher) run() {
	defer d.failPending()
	for {
		select {
		case <-d.quit:
			return
		default:
		}
		// dispatch one job of the client in the front of the round-robin list
		if !d.dispatchOne() {
			select {
			case job := <-d.JobQueue:
				d.enqueueJob(job)
			case <-d.quit:
				return
			}
			continue
		}
		// if we have a new job, enqueue it and its client
		select {
		case job := <-d.JobQueue:
			d.enqueueJob(job)
		default:
		}
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.Client]
	if q == nil {
		q = &clientQueue{}
		d.queues[job.Client] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		return
	}
	q.enqueued = true
	d.positions[job.Client] = d.ready.PushBack(job.Client)
}

// dispatchOne hands the next job of the front client to a worker, blocking
// until one is free.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	client := elem.Value.(string)
	q := d.queues[client]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, client)
		delete(d.queues, client)
	} else {
		d.ready.MoveToBack(elem)
	}
	d.mu.Unlock()

	workerChan := d.pool.acquire()
	if workerChan == nil {
		job.result <- Result{Err: ErrDispatcherBusy}
		return true
	}
	debugLog("[dispatcher] assign job %s for %q to worker-%d", job.Type, client, d.pool.workerID(workerChan))
	workerChan <- job
	return true
}
