package worker

import (
	"sync"
	"time"
)

type workerMeta struct {
	id        int
	ch        chan Job
	lastUsed  time.Time
	enqueued  bool // is in the idle queue
	discarded bool // is targeted as delete
}

type jobChannelPool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	idle     []*workerMeta
	metadata map[chan Job]*workerMeta
	min      int
	max      int
	running  int
	nextID   int
	expiry   time.Duration
	quit     chan struct{}
}

const defaultWorkerIdle = 30 * time.Second

func newJobChannelPool(minWorkers, maxWorkers int, idle time.Duration) *jobChannelPool {
	if idle <= 0 {
		idle = defaultWorkerIdle
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}
	p := &jobChannelPool{
		metadata: make(map[chan Job]*workerMeta),
		min:      minWorkers,
		max:      maxWorkers,
		expiry:   idle,
		quit:     make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	go p.purgeStaleWorkers()
	return p
}

// spawnLocked registers and starts a worker. Caller holds p.mu.
func (p *jobChannelPool) spawnLocked() *workerMeta {
	p.nextID++
	w := newWorker(p.nextID, p)
	meta := &workerMeta{id: p.nextID, ch: w.jobChannel, lastUsed: time.Now()}
	p.metadata[w.jobChannel] = meta
	p.running++
	w.Start()
	return meta
}

// warm starts idle workers up to the configured minimum.
func (p *jobChannelPool) warm() {
	p.mu.Lock()
	for p.running < p.min {
		meta := p.spawnLocked()
		meta.enqueued = true
		p.idle = append(p.idle, meta)
	}
	p.mu.Unlock()
}

// acquire returns an idle worker, spawns one below max, or waits for a release.
// It returns nil once the pool is stopped.
func (p *jobChannelPool) acquire() chan Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		select {
		case <-p.quit:
			return nil
		default:
		}
		if meta := p.popIdleLocked(); meta != nil {
			return meta.ch
		}
		if p.running < p.max {
			return p.spawnLocked().ch
		}
		p.cond.Wait()
	}
}

// Release puts a worker back into the idle queue.
func (p *jobChannelPool) Release(ch chan Job) {
	p.mu.Lock()
	meta, ok := p.metadata[ch]
	if !ok || meta.enqueued {
		p.mu.Unlock()
		return
	}
	if meta.discarded {
		// the pool stopped while this worker was busy
		delete(p.metadata, ch)
		p.running--
		p.mu.Unlock()
		close(ch)
		p.cond.Broadcast()
		return
	}
	meta.enqueued = true
	meta.lastUsed = time.Now()
	p.idle = append(p.idle, meta)
	p.mu.Unlock()
	p.cond.Signal()
}

func (p *jobChannelPool) workerID(ch chan Job) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if meta, ok := p.metadata[ch]; ok {
		return meta.id
	}
	return 0
}

// popIdleLocked check if pool has an idle worker, then return
func (p *jobChannelPool) popIdleLocked() *workerMeta {
	for len(p.idle) > 0 {
		meta := p.idle[0]
		p.idle = p.idle[1:]
		if meta.discarded {
			continue
		}
		meta.enqueued = false
		return meta
	}
	return nil
}

// purgeStaleWorkers call shutdownExpired when expiry time comes
func (p *jobChannelPool) purgeStaleWorkers() {
	ticker := time.NewTicker(p.expiry)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.shutdownExpired(time.Now())
		case <-p.quit:
			return
		}
	}
}

// shutdownExpired retires idle workers unused for longer than expiry, never
// going below min.
func (p *jobChannelPool) shutdownExpired(now time.Time) {
	var stale []*workerMeta

	p.mu.Lock()
	if len(p.idle) == 0 || p.running <= p.min {
		p.mu.Unlock()
		return
	}
	remaining := p.idle[:0] // keep the original array
	for _, meta := range p.idle {
		if meta.discarded {
			continue
		}
		if now.Sub(meta.lastUsed) >= p.expiry && p.running > p.min {
			meta.discarded = true
			meta.enqueued = false
			delete(p.metadata, meta.ch)
			p.running--
			stale = append(stale, meta)
			continue
		}
		remaining = append(remaining, meta)
	}
	p.idle = remaining
	p.mu.Unlock()

	// idle workers are parked on their channel, closing it ends them
	for _, meta := range stale {
		debugLog("[pool] retire idle worker-%d", meta.id)
		close(meta.ch)
	}
	if len(stale) > 0 {
		p.cond.Broadcast()
	}
}

// stop ends the purge loop and every idle worker. Busy workers finish their
// current job and are then dropped on release.
func (p *jobChannelPool) stop() {
	p.mu.Lock()
	select {
	case <-p.quit:
		p.mu.Unlock()
		return
	default:
	}
	close(p.quit)
	idle := p.idle
	p.idle = nil
	for _, meta := range idle {
		meta.discarded = true
		delete(p.metadata, meta.ch)
		p.running--
	}
	for _, meta := range p.metadata {
		meta.discarded = true
	}
	p.mu.Unlock()
	p.cond.Broadcast()
	for _, meta := range idle {
		close(meta.ch)
	}
}
