package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/platform/telemetry"
)

// txBeginner is the part of pgxpool.Pool the transaction layer needs.
type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// UnitOfWork is one logical mutation spanning one or more documents. It is
// re-executed from scratch on every retry attempt, so implementations must
// re-read current state inside the function instead of closing over reads
// taken before Run was called.
type UnitOfWork func(ctx context.Context) error

// CoordinatorOptions tunes the retry loop. Zero values take the defaults
// below.
type CoordinatorOptions struct {
	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

const (
	defaultMaxRetries  = 3
	defaultBackoffBase = 100 * time.Millisecond
	defaultBackoffCap  = 1000 * time.Millisecond
)

// Coordinator runs units of work transactionally when the store supports
// it, retries transient conflicts with capped exponential backoff, and
// falls back to plain sequential execution when it does not. All mutation
// paths that touch money or stock go through Run.
type Coordinator struct {
	pool   txBeginner
	probe  *CapabilityProbe
	logger zerolog.Logger

	maxRetries  int
	backoffBase time.Duration
	backoffCap  time.Duration

	// replaced in tests to observe the backoff schedule
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCoordinator wires a coordinator to a pool and its capability probe.
func NewCoordinator(pool txBeginner, probe *CapabilityProbe, logger zerolog.Logger, opts CoordinatorOptions) *Coordinator {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = defaultBackoffCap
	}
	return &Coordinator{
		pool:        pool,
		probe:       probe,
		logger:      logger,
		maxRetries:  opts.MaxRetries,
		backoffBase: opts.BackoffBase,
		backoffCap:  opts.BackoffCap,
		sleep:       sleepCtx,
	}
}

// Run executes fn under the strongest execution mode the store offers.
//
// Supported mode: a repeatable-read transaction is opened and attached to
// the context as the session; fn commits as a unit or not at all.
// Transient conflicts re-execute fn up to MaxRetries times with backoff
// 100ms, 200ms, 400ms... capped at BackoffCap. A capability-class error
// downgrades the probe and completes the remaining attempt on the fallback
// path. Fatal errors, including every domain error, propagate immediately.
//
// Fallback mode: fn runs exactly once with no session attached; writes
// apply statement by statement, best effort, and errors propagate without
// retry.
//
// The unit name labels logs and metrics only.
func (c *Coordinator) Run(ctx context.Context, unit string, fn UnitOfWork) error {
	start := time.Now()

	if !c.probe.Supported(ctx) {
		err := c.runFallback(ctx, unit, fn)
		telemetry.ObserveTx(unit, outcomeOf(err, "fallback"), time.Since(start))
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries+1; attempt++ {
		if attempt > 1 {
			telemetry.AddTxRetry(unit)
			if err := c.sleep(ctx, c.backoffFor(attempt-1)); err != nil {
				telemetry.ObserveTx(unit, "canceled", time.Since(start))
				return fmt.Errorf("unit %q: canceled during backoff: %w", unit, err)
			}
		}

		err := c.runTx(ctx, fn)
		if err == nil {
			telemetry.ObserveTx(unit, "committed", time.Since(start))
			return nil
		}
		lastErr = err

		switch Classify(err) {
		case ClassTransient:
			c.logger.Warn().Str("unit", unit).Int("attempt", attempt).Err(err).
				Msg("transient conflict, retrying unit of work")
			continue
		case ClassCapability:
			c.probe.Downgrade(err.Error())
			c.logger.Warn().Str("unit", unit).
				Msg("store rejected the transaction mid-flight; completing without a session")
			err = c.runFallback(ctx, unit, fn)
			telemetry.ObserveTx(unit, outcomeOf(err, "fallback"), time.Since(start))
			return err
		default:
			telemetry.ObserveTx(unit, "rolled_back", time.Since(start))
			return err
		}
	}

	telemetry.ObserveTx(unit, "exhausted", time.Since(start))
	return fmt.Errorf("unit %q: %d attempts exhausted: %w", unit, c.maxRetries+1, lastErr)
}

func (c *Coordinator) runTx(ctx context.Context, fn UnitOfWork) error {
	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(WithSession(ctx, tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (c *Coordinator) runFallback(ctx context.Context, unit string, fn UnitOfWork) error {
	err := fn(ctx)
	if err != nil {
		c.logger.Warn().Str("unit", unit).Err(err).
			Msg("unit of work failed in no-session mode; earlier writes in the unit are not rolled back")
	}
	return err
}

// backoffFor returns the wait before the given retry (1-based): base,
// 2*base, 4*base... never exceeding the cap.
func (c *Coordinator) backoffFor(retry int) time.Duration {
	d := c.backoffBase << (retry - 1)
	if d > c.backoffCap || d <= 0 {
		d = c.backoffCap
	}
	return d
}

func outcomeOf(err error, mode string) string {
	if err != nil {
		return mode + "_failed"
	}
	return mode
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
