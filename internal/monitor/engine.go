// Package monitor runs one reconciliation pass: search every provider for each
// identifier, diff the results against the seen-set, notify about new hits and
// persist the updated state once.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/vin-monitor/internal/metrics"
	"github.com/JakeFAU/vin-monitor/internal/notify"
	"github.com/JakeFAU/vin-monitor/internal/search"
	"github.com/JakeFAU/vin-monitor/internal/seen"
	"github.com/JakeFAU/vin-monitor/internal/storage"
)

var (
	// ErrNoIdentifiers is returned before any provider call when the input list is empty.
	ErrNoIdentifiers = errors.New("monitor: no identifiers configured")
	// ErrSaveFailed wraps a failure to persist the updated state.
	ErrSaveFailed = errors.New("monitor: state save failed")
)

// DefaultLimit is the per-provider result cap used when Options.Limit is unset.
const DefaultLimit = 25

const saveTimeout = 30 * time.Second

var tracer = otel.Tracer("github.com/JakeFAU/vin-monitor/internal/monitor")

// Clock supplies timestamps for reports and notifications.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Notifier delivers a message to every configured channel and returns the
// number of channels that failed. *notify.Fanout satisfies it.
type Notifier interface {
	Notify(ctx context.Context, msg notify.Message) int
}

// Options tune a run.
type Options struct {
	// Limit caps the hits requested from each provider.
	Limit int
	// Concurrency bounds how many identifiers are searched at once. Values
	// below 2 search strictly one identifier at a time.
	Concurrency int
	// DryRun skips notifications and the state save.
	DryRun bool
}

// Deps are the collaborators of an Engine. Store is required; everything else
// has a usable zero value.
type Deps struct {
	Providers []search.Provider
	Store     storage.Store
	Notifier  Notifier
	Metrics   *metrics.Recorder
	Logger    *zap.Logger
	Clock     Clock
	IDs       IDGenerator
}

// IdentifierReport summarizes one identifier within a run.
type IdentifierReport struct {
	Identifier     string
	Scanned        int
	New            []seen.NewHit
	ProviderErrors int
	NotifyErrors   int
}

// RunReport summarizes a whole run.
type RunReport struct {
	RunID        string
	StartedAt    time.Time
	FinishedAt   time.Time
	Identifiers  []IdentifierReport
	Changed      bool
	Saved        bool
	NotifyErrors int
	// LoadErr is the recovered error from loading state, if any.
	LoadErr error
}

// NewHits is the total number of new hits across identifiers.
func (r *RunReport) NewHits() int {
	n := 0
	for _, id := range r.Identifiers {
		n += len(id.New)
	}
	return n
}

// Engine orchestrates a single pass over the tracked identifiers.
type Engine struct {
	providers []search.Provider
	store     storage.Store
	notifier  Notifier
	metrics   *metrics.Recorder
	logger    *zap.Logger
	clock     Clock
	ids       IDGenerator
	opts      Options
}

// New builds an Engine.
func New(deps Deps, opts Options) (*Engine, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("monitor: state store is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = utcClock{}
	}
	if deps.IDs == nil {
		deps.IDs = fixedID("")
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewFanout(nil, 0, deps.Logger)
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	return &Engine{
		providers: deps.Providers,
		store:     deps.Store,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		clock:     deps.Clock,
		ids:       deps.IDs,
		opts:      opts,
	}, nil
}

type fetchResult struct {
	hits     []search.RawHit
	outcomes []search.Outcome
}

// Run performs one pass. The report is returned even when the save fails.
func (e *Engine) Run(ctx context.Context, identifiers []string) (*RunReport, error) {
	if len(identifiers) == 0 {
		return nil, ErrNoIdentifiers
	}
	runID, err := e.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("monitor: run id: %w", err)
	}
	ctx, span := tracer.Start(ctx, "monitor.run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Int("identifiers", len(identifiers)),
	))
	defer span.End()

	logger := e.logger.With(zap.String("run_id", runID))
	if sc := span.SpanContext(); sc.HasTraceID() {
		logger = logger.With(zap.String("trace_id", sc.TraceID().String()))
	}
	report := &RunReport{RunID: runID, StartedAt: e.clock.Now()}

	state, err := e.store.Load(ctx)
	if err != nil {
		report.LoadErr = err
		logger.Warn("state load failed, starting from empty state",
			zap.String("store", e.store.Describe()),
			zap.Error(err),
		)
	}
	if state == nil {
		state = seen.New()
	}

	next := e.fetcher(ctx, identifiers, logger)
	for i, identifier := range identifiers {
		res := next(i)
		rep := e.reconcile(ctx, runID, state, identifier, res, logger)
		if len(rep.New) > 0 {
			report.Changed = true
		}
		report.NotifyErrors += rep.NotifyErrors
		report.Identifiers = append(report.Identifiers, rep)
	}

	var saveErr error
	switch {
	case !report.Changed:
		logger.Debug("state unchanged, skipping save")
	case e.opts.DryRun:
		logger.Info("dry run, state not saved", zap.Int("new_hits", report.NewHits()))
	default:
		saveErr = e.save(ctx, state, logger)
		report.Saved = saveErr == nil
	}

	report.FinishedAt = e.clock.Now()
	e.metrics.ObserveRun(len(identifiers), report.FinishedAt, report.FinishedAt.Sub(report.StartedAt))
	logger.Info("run finished",
		zap.Int("identifiers", len(identifiers)),
		zap.Int("new_hits", report.NewHits()),
		zap.Bool("saved", report.Saved),
		zap.Int("notify_errors", report.NotifyErrors),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	span.SetAttributes(attribute.Int("new_hits", report.NewHits()), attribute.Bool("saved", report.Saved))
	if saveErr != nil {
		err := fmt.Errorf("%w: %w", ErrSaveFailed, saveErr)
		span.RecordError(err)
		span.SetStatus(codes.Error, "state save failed")
		return report, err
	}
	return report, nil
}

// fetcher returns a function yielding the search results for identifier i.
// With concurrency enabled, searches run ahead on an errgroup while results
// are still consumed strictly in input order.
func (e *Engine) fetcher(ctx context.Context, identifiers []string, logger *zap.Logger) func(int) fetchResult {
	if e.opts.Concurrency < 2 || len(identifiers) < 2 {
		return func(i int) fetchResult {
			return e.collect(ctx, identifiers[i], logger)
		}
	}

	results := make([]fetchResult, len(identifiers))
	ready := make([]chan struct{}, len(identifiers))
	for i := range ready {
		ready[i] = make(chan struct{})
	}
	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)
	go func() {
		for i := range identifiers {
			g.Go(func() error {
				results[i] = e.collect(ctx, identifiers[i], logger)
				close(ready[i])
				return nil
			})
		}
		_ = g.Wait()
	}()
	return func(i int) fetchResult {
		<-ready[i]
		return results[i]
	}
}

func (e *Engine) collect(ctx context.Context, identifier string, logger *zap.Logger) fetchResult {
	logger.Info("searching", zap.String("identifier", identifier))
	hits, outcomes := search.Collect(ctx, e.providers, identifier, e.opts.Limit, logger)
	for _, o := range outcomes {
		e.metrics.ObserveProvider(string(o.Provider), o.Hits, o.Duration, o.Err)
	}
	return fetchResult{hits: hits, outcomes: outcomes}
}

func (e *Engine) reconcile(
	ctx context.Context,
	runID string,
	state *seen.State,
	identifier string,
	res fetchResult,
	logger *zap.Logger,
) IdentifierReport {
	ctx, span := tracer.Start(ctx, "monitor.reconcile", trace.WithAttributes(
		attribute.String("identifier", identifier),
		attribute.Int("scanned", len(res.hits)),
	))
	defer span.End()

	rep := IdentifierReport{Identifier: identifier, Scanned: len(res.hits)}
	for _, o := range res.outcomes {
		if o.Err != nil {
			rep.ProviderErrors++
		}
	}

	newHits, merged := seen.Diff(state, identifier, res.hits)
	if len(newHits) == 0 {
		logger.Info("no new matches",
			zap.String("identifier", identifier),
			zap.Int("scanned", rep.Scanned),
		)
		return rep
	}

	state.Commit(identifier, merged)
	rep.New = newHits
	span.SetAttributes(attribute.Int("new_hits", len(newHits)))
	e.metrics.ObserveNewHits(identifier, len(newHits))

	body := FormatBody(identifier, newHits)
	logger.Info("found new matches",
		zap.String("identifier", identifier),
		zap.Int("count", len(newHits)),
		zap.Int("scanned", rep.Scanned),
		zap.String("body", body),
	)
	if e.opts.DryRun {
		return rep
	}
	rep.NotifyErrors = e.notifier.Notify(ctx, notify.Message{
		RunID:      runID,
		Identifier: identifier,
		Subject:    Subject(identifier),
		Body:       body,
		Hits:       newHits,
		DetectedAt: e.clock.Now(),
	})
	return rep
}

// save persists state exactly once. It detaches from ctx cancellation so an
// interrupted run still records the hits it already notified about.
func (e *Engine) save(ctx context.Context, state *seen.State, logger *zap.Logger) error {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	err := e.store.Save(saveCtx, state)
	e.metrics.ObserveSave(err)
	if err != nil {
		logger.Error("state save failed",
			zap.String("store", e.store.Describe()),
			zap.Error(err),
		)
		return err
	}
	logger.Info("state saved",
		zap.String("store", e.store.Describe()),
		zap.Int("identifiers", state.Len()),
	)
	return nil
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

type fixedID string

func (f fixedID) NewID() (string, error) { return string(f), nil }
