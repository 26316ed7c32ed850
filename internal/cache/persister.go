// internal/cache/persister.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/spancache/internal/fingerprint"
	"github.com/FairForge/spancache/internal/kvstore"
	"github.com/FairForge/spancache/internal/labeling"
)

// rawPair is one persisted [key, entry] element before validation
type rawPair struct {
	Key   string
	Entry json.RawMessage
}

type persistJob struct {
	entries []*Entry
	remove  bool
	seq     uint64
}

// Persister writes whole-store snapshots to one durable key. Writes are coalesced and run
// on a single goroutine so callers never block; only the latest snapshot is written.
// While held (during hydration) writes wait so a fresh snapshot cannot overwrite data that
// has not been read yet.
type Persister struct {
	store   kvstore.Store
	key     string
	codec   Codec
	timeout time.Duration
	logger  *zap.Logger
	metrics *Metrics

	mu      sync.Mutex
	pending *persistJob
	seq     uint64
	holds   int
	resume  chan struct{}

	writeMu sync.Mutex

	signal  chan struct{}
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func newPersister(store kvstore.Store, key string, codec Codec, logger *zap.Logger, metrics *Metrics) *Persister {
	p := &Persister{
		store:   store,
		key:     key,
		codec:   codec,
		timeout: 10 * time.Second,
		logger:  logger,
		metrics: metrics,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Persister) run() {
	defer close(p.stopped)
	for {
		select {
		case <-p.done:
			return
		case <-p.signal:
		}

		if !p.waitUnheld(context.Background()) {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.writePending(ctx); err != nil {
			p.logger.Warn("failed to persist span cache", zap.Error(err))
		}
		cancel()
	}
}

// ScheduleWrite queues a snapshot of entries (least recently used first)
func (p *Persister) ScheduleWrite(entries []*Entry) {
	p.schedule(&persistJob{entries: entries})
}

// Delete removes the persisted snapshot before returning. A write scheduled after the
// delete supersedes it and stays queued.
func (p *Persister) Delete(ctx context.Context) error {
	seq := p.schedule(&persistJob{remove: true})

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.Settle(ctx, seq)
}

func (p *Persister) schedule(job *persistJob) uint64 {
	p.mu.Lock()
	p.seq++
	job.seq = p.seq
	p.pending = job
	p.mu.Unlock()

	select {
	case p.signal <- struct{}{}:
	default:
	}
	return job.seq
}

// Hold pauses writes until a matching Release. It returns a barrier for Settle: jobs
// scheduled up to the barrier predate the hold.
func (p *Persister) Hold() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.holds++
	if p.holds == 1 {
		p.resume = make(chan struct{})
	}
	return p.seq
}

// Settle writes the pending job if it was scheduled at or before barrier, even while held.
// Later jobs stay pending until the hold is released.
func (p *Persister) Settle(ctx context.Context, barrier uint64) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	job := p.pending
	if job == nil || job.seq > barrier {
		p.mu.Unlock()
		return nil
	}
	p.pending = nil
	p.mu.Unlock()

	return p.write(ctx, job)
}

// Release undoes one Hold
func (p *Persister) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.holds == 0 {
		return
	}
	p.holds--
	if p.holds == 0 {
		close(p.resume)
	}
}

func (p *Persister) waitUnheld(ctx context.Context) bool {
	for {
		p.mu.Lock()
		if p.holds == 0 {
			p.mu.Unlock()
			return true
		}
		resume := p.resume
		p.mu.Unlock()

		select {
		case <-resume:
		case <-p.done:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// writePending takes the write lock first so a concurrent Flush waits for an in-flight write.
func (p *Persister) writePending(ctx context.Context) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	job := p.pending
	p.pending = nil
	p.mu.Unlock()

	if job == nil {
		return nil
	}
	return p.write(ctx, job)
}

func (p *Persister) write(ctx context.Context, job *persistJob) error {
	if job.remove {
		if err := p.store.Delete(ctx, p.key); err != nil {
			p.metrics.recordPersistError()
			return fmt.Errorf("delete snapshot: %w", err)
		}
		return nil
	}

	data, err := p.encode(job.entries)
	if err != nil {
		p.metrics.recordPersistError()
		return err
	}
	if err := p.store.Set(ctx, p.key, data); err != nil {
		p.metrics.recordPersistError()
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func (p *Persister) encode(entries []*Entry) ([]byte, error) {
	pairs := make([][2]any, 0, len(entries))
	for _, e := range entries {
		pairs = append(pairs, [2]any{string(e.Key), e})
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		return nil, fmt.Errorf("serialize snapshot: %w", err)
	}
	out, err := p.codec.Encode(data)
	if err != nil {
		return nil, fmt.Errorf("compress snapshot: %w", err)
	}
	return out, nil
}

// Load reads the persisted snapshot. Elements that are not a [string, object] pair are
// skipped and counted; a missing snapshot is not an error.
func (p *Persister) Load(ctx context.Context) ([]rawPair, int, error) {
	data, err := p.store.Get(ctx, p.key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read snapshot: %w", err)
	}

	plain, err := p.codec.Decode(data)
	if err != nil {
		return nil, 0, fmt.Errorf("decompress snapshot: %w", err)
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(plain, &elems); err != nil {
		return nil, 0, fmt.Errorf("parse snapshot: %w", err)
	}

	pairs := make([]rawPair, 0, len(elems))
	malformed := 0
	for _, elem := range elems {
		var parts []json.RawMessage
		if err := json.Unmarshal(elem, &parts); err != nil || len(parts) != 2 {
			malformed++
			continue
		}
		var key string
		if err := json.Unmarshal(parts[0], &key); err != nil || key == "" {
			malformed++
			continue
		}
		pairs = append(pairs, rawPair{Key: key, Entry: parts[1]})
	}
	return pairs, malformed, nil
}

// Flush writes any pending snapshot now, waiting for holds and in-flight writes
func (p *Persister) Flush(ctx context.Context) error {
	if !p.waitUnheld(ctx) {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return p.writePending(ctx)
}

// Close stops the writer goroutine and flushes what is pending
func (p *Persister) Close(ctx context.Context) error {
	p.once.Do(func() { close(p.done) })
	<-p.stopped
	return p.writePending(ctx)
}

func decodeEntry(pair rawPair) (*Entry, error) {
	if err := validateEntry(pair.Entry); err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(pair.Entry, &e); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	e.Key = fingerprint.Fingerprint(pair.Key)
	if e.Spans == nil {
		e.Spans = []labeling.Span{}
	}
	return &e, nil
}
