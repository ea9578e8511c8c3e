package batcher

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"pfpgofer/internal/metrics"
	"pfpgofer/internal/solana"
)

// Engine queues profile picture lookups per endpoint and resolves them in batches
type Engine struct {
	cfg      Config
	deriver  Deriver
	dial     DialFunc
	metadata MetadataSource
	tracer   trace.Tracer
	logger   zerolog.Logger

	pending  map[string]*pendingBatch // endpoint -> batch
	closed   bool
	inflight sync.WaitGroup
	mu       sync.Mutex
}

// NewEngine creates an Engine. Zero values in cfg are replaced with defaults.
func NewEngine(cfg Config, deriver Deriver, dial DialFunc, md MetadataSource, logger zerolog.Logger) *Engine {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.PayloadConcurrency <= 0 {
		cfg.PayloadConcurrency = def.PayloadConcurrency
	}

	return &Engine{
		cfg:      cfg,
		deriver:  deriver,
		dial:     dial,
		metadata: md,
		tracer:   otel.Tracer("pfpgofer/batcher"),
		logger:   logger.With().Str("component", "batcher").Logger(),
		pending:  make(map[string]*pendingBatch),
	}
}

// Config returns the effective batching configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// Enqueue queues a lookup of owner against endpoint. Exactly one of succeed or
// fail is called, from another goroutine, once the owner's batch is processed.
// Enqueue never blocks on I/O.
func (e *Engine) Enqueue(endpoint string, owner solana.PublicKey, succeed func(*Resolution), fail func(error)) {
	e.mu.Lock()

	if e.closed {
		e.mu.Unlock()
		fail(ErrEngineClosed)
		return
	}

	batch := e.pending[endpoint]
	if batch == nil {
		batch = newPendingBatch(endpoint)
		e.pending[endpoint] = batch
	}

	size := batch.add(owner, waiter{succeed: succeed, fail: fail})

	// Early flush only once the first lookup has armed the timer
	if size >= e.cfg.BatchSize && batch.timer != nil {
		e.detach(batch)
		e.mu.Unlock()
		go e.run(batch, triggerSize)
		return
	}

	batch.arm(e.cfg.Interval, func(seq uint64) {
		e.onTimer(batch, seq)
	})
	e.mu.Unlock()
}

// Push is Enqueue delivering the outcome on a channel
func (e *Engine) Push(endpoint string, owner solana.PublicKey) <-chan Result {
	resultChan := make(chan Result, 1)
	e.Enqueue(endpoint, owner,
		func(res *Resolution) { resultChan <- Result{Resolution: res} },
		func(err error) { resultChan <- Result{Err: err} },
	)
	return resultChan
}

// onTimer flushes batch if seq is still its current timer
func (e *Engine) onTimer(batch *pendingBatch, seq uint64) {
	e.mu.Lock()
	if e.pending[batch.endpoint] != batch || batch.seq != seq {
		e.mu.Unlock()
		return
	}
	e.detach(batch)
	e.mu.Unlock()

	e.run(batch, triggerTimer)
}

// detach removes batch from the pending table so that new lookups start a fresh
// batch. Must be called with e.mu held.
func (e *Engine) detach(batch *pendingBatch) {
	batch.stopTimer()
	if e.pending[batch.endpoint] == batch {
		delete(e.pending, batch.endpoint)
	}
	e.inflight.Add(1)
}

func (e *Engine) run(batch *pendingBatch, trig trigger) {
	defer e.inflight.Done()
	metrics.BatchesFlushed.WithLabelValues(string(trig)).Inc()
	e.process(context.Background(), batch.endpoint, batch.items())
}

// Close flushes every pending batch and waits for running pipelines to finish
// or ctx to end. Lookups enqueued afterwards fail with ErrEngineClosed.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	batches := make([]*pendingBatch, 0, len(e.pending))
	for _, batch := range e.pending {
		batches = append(batches, batch)
	}
	for _, batch := range batches {
		e.detach(batch)
	}
	e.mu.Unlock()

	for _, batch := range batches {
		go e.run(batch, triggerClose)
	}

	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info().Int("flushed", len(batches)).Msg("batch engine closed")
		return nil
	case <-ctx.Done():
		e.logger.Warn().Msg("batch engine closed with pipelines still running")
		return ctx.Err()
	}
}
