package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/metrics"
	"github.com/opensource-finance/fraudlens/internal/scoring"
	"github.com/opensource-finance/fraudlens/internal/velocity"
)

var tracer = otel.Tracer("fraudlens/batch")

// RowResult is the outcome of scoring one data row.
type RowResult struct {
	// Row is the zero-based data row index.
	Row          int          `json:"row"`
	Score        int          `json:"score"`
	Label        domain.Label `json:"label"`
	Reasons      []string     `json:"reasons"`
	VelocityFlag string       `json:"velocityFlag,omitempty"`
	Error        string       `json:"error,omitempty"`
	ErrorKind    string       `json:"errorKind,omitempty"`

	Triggered []string `json:"-"`
	Err       error    `json:"-"`
}

// OK reports whether the row was scored.
func (r *RowResult) OK() bool {
	return r.Err == nil
}

// Result holds per-row outcomes in input order.
type Result struct {
	Table  *Table      `json:"-"`
	Rows   []RowResult `json:"rows"`
	Scored int         `json:"scored"`
	Failed int         `json:"failed"`
}

// Processor scores every row of a table with a bounded worker pool.
type Processor struct {
	engine   *scoring.Engine
	counter  *velocity.Counter
	workers  int
	maxRows  int
	logger   *slog.Logger
	observer func(row *RowResult)
}

// Option configures a Processor.
type Option func(*Processor)

// WithWorkers sets the number of scoring goroutines.
func WithWorkers(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithMaxRows rejects tables with more data rows than n. Zero disables the limit.
func WithMaxRows(n int) Option {
	return func(p *Processor) {
		p.maxRows = n
	}
}

// WithLogger sets the logger for row failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithObserver registers a callback invoked once per row after the batch
// completes, in row order.
func WithObserver(fn func(row *RowResult)) Option {
	return func(p *Processor) {
		p.observer = fn
	}
}

// NewProcessor creates a batch processor around a compiled engine.
func NewProcessor(engine *scoring.Engine, opts ...Option) *Processor {
	p := &Processor{
		engine:  engine,
		counter: velocity.NewCounter(engine.Config().VelocityMinRepeats),
		workers: 4,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process scores every row. A failing row is recorded in its RowResult and
// does not abort the batch. The batch is aborted only on context cancellation
// or when the table exceeds the row limit.
func (p *Processor) Process(ctx context.Context, table *Table) (*Result, error) {
	ctx, span := tracer.Start(ctx, "batch.Process")
	defer span.End()
	span.SetAttributes(attribute.Int("batch.rows", table.Len()))

	if p.maxRows > 0 && table.Len() > p.maxRows {
		err := fmt.Errorf("%w: batch has %d rows, limit is %d", domain.ErrInvalidInput, table.Len(), p.maxRows)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	start := time.Now()
	defer func() {
		metrics.BatchDuration.Observe(time.Since(start).Seconds())
	}()

	// Velocity depends only on Card_ID, so it runs alongside row scoring.
	var flags []string
	var vwg sync.WaitGroup
	if cards := table.Column(ColumnCardID); cards != nil {
		vwg.Add(1)
		go func() {
			defer vwg.Done()
			flags = p.counter.Flags(cards)
		}()
	}

	res := &Result{
		Table: table,
		Rows:  make([]RowResult, table.Len()),
	}

	work := make(chan int, p.workers)
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				res.Rows[idx] = p.scoreRow(table, idx)
			}
		}()
	}

send:
	for i := range table.Rows {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break send
		case work <- i:
		}
	}
	close(work)
	wg.Wait()
	vwg.Wait()

	if cancelled := ctx.Err(); cancelled != nil {
		span.SetStatus(codes.Error, cancelled.Error())
		return nil, cancelled
	}

	for i := range res.Rows {
		row := &res.Rows[i]
		if flags != nil {
			row.VelocityFlag = flags[i]
		}
		if row.OK() {
			res.Scored++
			metrics.BatchRowsTotal.WithLabelValues("scored").Inc()
		} else {
			res.Failed++
			metrics.BatchRowsTotal.WithLabelValues("failed").Inc()
			p.logger.Warn("batch row rejected",
				"row", row.Row,
				"kind", row.ErrorKind,
				"error", row.Error,
			)
		}
		if p.observer != nil {
			p.observer(row)
		}
	}

	span.SetAttributes(
		attribute.Int("batch.scored", res.Scored),
		attribute.Int("batch.failed", res.Failed),
	)
	return res, nil
}

func (p *Processor) scoreRow(table *Table, idx int) RowResult {
	row := RowResult{Row: idx}

	tx, err := table.Transaction(idx)
	if err == nil {
		var out scoring.Outcome
		// No device history in batch mode.
		out, err = p.engine.Score(tx, "")
		if err == nil {
			var label domain.Label
			label, err = scoring.LabelFor(out.Result.Score)
			if err == nil {
				row.Score = out.Result.Score
				row.Reasons = out.Result.Reasons
				row.Label = label
				row.Triggered = out.Triggered
				metrics.ObserveScore(domain.ModeBatch, label.Name, out.Triggered)
				return row
			}
		}
	}

	row.Err = err
	row.Error = err.Error()
	row.ErrorKind = domain.ErrorKind(err)
	metrics.ObserveError(domain.ModeBatch, row.ErrorKind)
	return row
}
