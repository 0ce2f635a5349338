package worker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDispatcherBusy is returned when the job queue is full or the
// dispatcher has stopped.
var ErrDispatcherBusy = errors.New("dispatcher busy")

// JobType labels what a job does, for logs.
type JobType string

const (
	Analyze  JobType = "analyze"
	ChatSQL  JobType = "chat_sql"
	FollowUp JobType = "follow_up"
)

// DispatcherConfig sizes the pool and its queue.
type DispatcherConfig struct {
	MinWorkers        int
	MaxWorkers        int
	QueueSize         int
	WorkerIdleTimeout time.Duration
}

// Result is what a job hands back to its submitter.
type Result struct {
	Text string
	Err  error
}

// Job is one blocking call executed on a pooled worker.
type Job struct {
	Type   JobType
	Client string
	ctx    context.Context
	run    func(ctx context.Context) (string, error)
	result chan Result
}

func (job Job) execute() {
	defer func() {
		if r := recover(); r != nil {
			job.result <- Result{Err: fmt.Errorf("%s job panicked: %v", job.Type, r)}
		}
	}()
	if err := job.ctx.Err(); err != nil {
		job.result <- Result{Err: err}
		return
	}
	text, err := job.run(job.ctx)
	job.result <- Result{Text: text, Err: err}
}

type clientKey struct{}

// WithClient tags ctx with the caller identity used for fair queueing.
func WithClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, clientKey{}, client)
}

// ClientFromContext returns the identity set by WithClient, or "".
func ClientFromContext(ctx context.Context) string {
	client, _ := ctx.Value(clientKey{}).(string)
	return client
}
