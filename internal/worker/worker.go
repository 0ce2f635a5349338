package worker

type Worker struct {
	id         int
	pool       *jobChannelPool
	jobChannel chan Job
}

func newWorker(id int, pool *jobChannelPool) *Worker {
	return &Worker{
		id:         id,
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

// Start runs jobs until the pool closes the channel.
func (w *Worker) Start() {
	go func() {
		for job := range w.jobChannel {
			debugLog("[worker-%d] run %s for %q", w.id, job.Type, job.Client)
			job.execute()
			w.pool.Release(w.jobChannel)
		}
		debugLog("[worker-%d] stopped", w.id)
	}()
}
