package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestDispatcher(t *testing.T, cfg DispatcherConfig) *Dispatcher {
	t.Helper()
	d := NewDispatcher(cfg)
	t.Cleanup(d.Stop)
	return d
}

func TestDispatcherRunsJob(t *testing.T) {
	d := newTestDispatcher(t, DispatcherConfig{MinWorkers: 1, MaxWorkers: 2, QueueSize: 4})

	text, err := d.Submit(WithClient(context.Background(), "10.0.0.1"), Analyze, func(ctx context.Context) (string, error) {
		if ClientFromContext(ctx) != "10.0.0.1" {
			t.Errorf("client not propagated")
		}
		return "done", nil
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if text != "done" {
		t.Fatalf("unexpected result %q", text)
	}
}

func TestDispatcherPropagatesJobError(t *testing.T) {
	d := newTestDispatcher(t, DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1})
	boom := errors.New("boom")
	_, err := d.Submit(context.Background(), ChatSQL, func(context.Context) (string, error) {
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestDispatcherRecoversPanic(t *testing.T) {
	d := newTestDispatcher(t, DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1})
	_, err := d.Submit(context.Background(), FollowUp, func(context.Context) (string, error) {
		panic("bad job")
	})
	if err == nil {
		t.Fatalf("expected error from panicking job")
	}
	// the worker must still be usable afterwards
	text, err := d.Submit(context.Background(), FollowUp, func(context.Context) (string, error) { return "ok", nil })
	if err != nil || text != "ok" {
		t.Fatalf("worker not reusable: %q %v", text, err)
	}
}

func TestDispatcherSameClientRunsInOrder(t *testing.T) {
	d := newTestDispatcher(t, DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 10})
	ctx := WithClient(context.Background(), "a")

	var mu sync.Mutex
	var order []string
	for _, label := range []string{"first", "second"} {
		label := label
		if _, err := d.Submit(ctx, ChatSQL, func(context.Context) (string, error) {
			mu.Lock()
			order = append(order, label)
			mu.Unlock()
			return label, nil
		}); err != nil {
			t.Fatalf("Submit %s: %v", label, err)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("expected execution order [first second], got %v", order)
	}
}

func TestDispatcherBusyWhenQueueFull(t *testing.T) {
	d := newTestDispatcher(t, DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1})

	block := make(chan struct{})
	started := make(chan struct{})
	go d.Submit(context.Background(), Analyze, func(context.Context) (string, error) {
		close(started)
		<-block
		return "", nil
	})
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatalf("first job did not start")
	}
	defer close(block)

	// accepted jobs pile up behind the busy worker until the queue is full
	deadline := time.Now().Add(2 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		_, err := d.Submit(ctx, Analyze, func(context.Context) (string, error) { return "", nil })
		cancel()
		if errors.Is(err, ErrDispatcherBusy) {
			return
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("unexpected submit result: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected ErrDispatcherBusy")
		}
	}
}

func TestDispatcherHighLoadAllowsOtherClients(t *testing.T) {
	d := newTestDispatcher(t, DispatcherConfig{MinWorkers: 1, MaxWorkers: 2, QueueSize: 10})

	block := make(chan struct{})
	started := make(chan struct{})
	slowDone := make(chan struct{})
	go func() {
		d.Submit(WithClient(context.Background(), "slow"), Analyze, func(context.Context) (string, error) {
			close(started)
			<-block
			return "slow", nil
		})
		close(slowDone)
	}()
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatalf("slow job did not start")
	}

	fastDone := make(chan string, 1)
	go func() {
		text, _ := d.Submit(WithClient(context.Background(), "fast"), ChatSQL, func(context.Context) (string, error) {
			return "fast", nil
		})
		fastDone <- text
	}()
	select {
	case text := <-fastDone:
		if text != "fast" {
			t.Fatalf("unexpected fast result %q", text)
		}
	case <-time.After(time.Second):
		t.Fatalf("fast client blocked behind slow client")
	}

	close(block)
	select {
	case <-slowDone:
	case <-time.After(time.Second):
		t.Fatalf("slow job did not finish")
	}
}

func TestDispatcherSubmitHonorsContext(t *testing.T) {
	d := newTestDispatcher(t, DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 2})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Submit(ctx, Analyze, func(context.Context) (string, error) {
		return "should not run", nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func (p *jobChannelPool) stats() (running, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running, len(p.idle)
}

func TestDispatcherStopAnswersQueuedJobs(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 8})

	block := make(chan struct{})
	started := make(chan struct{})
	first := make(chan error, 1)
	go func() {
		_, err := d.Submit(context.Background(), Analyze, func(context.Context) (string, error) {
			close(started)
			<-block
			return "done", nil
		})
		first <- err
	}()
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatalf("first job did not start")
	}

	// no deadline: these only return if Stop answers them
	const queued = 3
	errs := make(chan error, queued)
	for i := 0; i < queued; i++ {
		client := WithClient(context.Background(), string(rune('a'+i)))
		go func() {
			_, err := d.Submit(client, ChatSQL, func(context.Context) (string, error) { return "ran", nil })
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)

	d.Stop()
	for i := 0; i < queued; i++ {
		select {
		case err := <-errs:
			if !errors.Is(err, ErrDispatcherBusy) {
				t.Fatalf("expected ErrDispatcherBusy for queued job, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("queued job %d never answered after Stop", i)
		}
	}

	close(block)
	select {
	case err := <-first:
		if err != nil {
			t.Fatalf("running job should complete, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("running job did not complete")
	}

	if _, err := d.Submit(context.Background(), Analyze, func(context.Context) (string, error) { return "", nil }); !errors.Is(err, ErrDispatcherBusy) {
		t.Fatalf("expected ErrDispatcherBusy after Stop, got %v", err)
	}
}

func TestPoolStopWakesWaitingAcquire(t *testing.T) {
	p := newJobChannelPool(0, 1, time.Hour)
	busy := p.acquire()
	if busy == nil {
		t.Fatalf("expected a worker")
	}

	got := make(chan chan Job, 1)
	go func() { got <- p.acquire() }()
	time.Sleep(20 * time.Millisecond)

	p.stop()
	select {
	case ch := <-got:
		if ch != nil {
			t.Fatalf("acquire after stop should return nil")
		}
	case <-time.After(time.Second):
		t.Fatalf("acquire still waiting after stop")
	}
	p.Release(busy)
	if running, idle := p.stats(); running != 0 || idle != 0 {
		t.Fatalf("expected no workers after release, got %d/%d", running, idle)
	}
}

func TestPoolRetiresIdleWorkersAboveMin(t *testing.T) {
	p := newJobChannelPool(1, 3, time.Hour)
	defer p.stop()
	p.warm()

	a := p.acquire()
	b := p.acquire()
	c := p.acquire()
	if running, _ := p.stats(); running != 3 {
		t.Fatalf("expected 3 running workers, got %d", running)
	}
	p.Release(a)
	p.Release(b)
	p.Release(c)

	p.shutdownExpired(time.Now().Add(2 * time.Hour))
	running, idle := p.stats()
	if running != 1 || idle != 1 {
		t.Fatalf("expected 1 running/1 idle after purge, got %d/%d", running, idle)
	}
}

func TestClientFromContextDefault(t *testing.T) {
	if got := ClientFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty client, got %q", got)
	}
}
