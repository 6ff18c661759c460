package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/mtinv-quakeml/internal/domain"
	"github.com/couchcryptid/mtinv-quakeml/internal/observability"
)

const (
	defaultInitialBackoff = 200 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
)

// BatchExtractor reads up to batchSize raw report messages from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer converts one raw report message into a QuakeML document message.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error)
}

// BatchLoader publishes converted documents.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.OutputEvent) error
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithClock sets the clock used for retry waits and batch timing.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithBackoff sets the first and the largest retry wait.
func WithBackoff(initial, maxWait time.Duration) Option {
	return func(p *Pipeline) { p.initialBackoff, p.maxBackoff = initial, maxWait }
}

// Pipeline consumes report messages, converts them and publishes the
// resulting documents. A message is committed once its document is published
// or once it is known to be unconvertible.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	clock       clockwork.Clock
	batchSize   int

	initialBackoff time.Duration
	maxBackoff     time.Duration

	ready atomic.Bool
}

// New creates a Pipeline.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor:      e,
		transformer:    t,
		loader:         l,
		logger:         logger,
		metrics:        metrics,
		clock:          clockwork.NewRealClock(),
		batchSize:      batchSize,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness reports ready once a converted document has been published.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no QuakeML document published yet")
	}
	return nil
}

// Run consumes until ctx is cancelled. Cancellation is a clean stop.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	retry := p.newBackoff()
	for ctx.Err() == nil {
		raws, err := p.extractor.ExtractBatch(ctx, p.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			p.logger.Error("extract batch failed", "error", err)
			retry.wait(ctx)
			continue
		}
		retry.reset()
		if len(raws) > 0 {
			p.handle(ctx, raws)
		}
	}
	p.logger.Info("pipeline stopping", "reason", ctx.Err())
	return nil
}

// converted is one batch after conversion: the documents to publish and the
// messages to commit once they are.
type converted struct {
	docs    []domain.OutputEvent
	sources []domain.RawEvent
	failed  int
}

// handle converts a batch, commits its poison messages at once and keeps
// publishing the documents until that succeeds or ctx ends.
func (p *Pipeline) handle(ctx context.Context, raws []domain.RawEvent) {
	start := p.clock.Now()
	p.metrics.MessagesConsumed.Add(float64(len(raws)))
	p.metrics.BatchSize.Observe(float64(len(raws)))

	batch := p.convert(ctx, raws)
	if len(batch.docs) == 0 {
		return
	}
	if !p.publish(ctx, batch.docs) {
		return
	}
	for _, raw := range batch.sources {
		p.commit(ctx, raw)
	}

	p.metrics.MessagesProduced.Add(float64(len(batch.docs)))
	p.metrics.BatchProcessingDuration.Observe(p.clock.Since(start).Seconds())
	p.ready.Store(true)
	p.logger.Debug("batch published",
		"consumed", len(raws),
		"published", len(batch.docs),
		"failed", batch.failed,
	)
}

func (p *Pipeline) convert(ctx context.Context, raws []domain.RawEvent) converted {
	batch := converted{
		docs:    make([]domain.OutputEvent, 0, len(raws)),
		sources: make([]domain.RawEvent, 0, len(raws)),
	}
	for _, raw := range raws {
		doc, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			// Retrying cannot fix a malformed report.
			kind := ErrorKind(err)
			p.logger.Warn("report not convertible, skipping",
				"error", err,
				"kind", kind,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.ConversionErrors.WithLabelValues(kind).Inc()
			p.commit(ctx, raw)
			batch.failed++
			continue
		}
		batch.docs = append(batch.docs, doc)
		batch.sources = append(batch.sources, raw)
	}
	return batch
}

// publish loads docs, waiting between attempts. It returns false only when
// ctx ended first, in which case nothing is committed and the messages are
// redelivered to the next consumer.
func (p *Pipeline) publish(ctx context.Context, docs []domain.OutputEvent) bool {
	retry := p.newBackoff()
	for {
		err := p.loader.LoadBatch(ctx, docs)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("publish batch failed", "error", err, "documents", len(docs), "retry_in", retry.current)
		if !retry.wait(ctx) {
			return false
		}
	}
}

func (p *Pipeline) commit(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

// backoff doubles its wait after each failure, up to max.
type backoff struct {
	clock   clockwork.Clock
	initial time.Duration
	max     time.Duration
	current time.Duration
}

func (p *Pipeline) newBackoff() *backoff {
	return &backoff{clock: p.clock, initial: p.initialBackoff, max: p.maxBackoff, current: p.initialBackoff}
}

func (b *backoff) reset() { b.current = b.initial }

// wait sleeps for the current interval and grows it. It returns false if ctx
// ended first.
func (b *backoff) wait(ctx context.Context) bool {
	if b.current > 0 {
		timer := b.clock.NewTimer(b.current)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-timer.Chan():
		}
	}
	b.current = min(b.current*2, b.max)
	return ctx.Err() == nil
}
