package db

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/platform/telemetry"
)

// CapabilityProbe determines once per process whether the connected store
// can run multi-statement transactions. Deployments behind a
// statement-pooling proxy or pointed at a read-only standby cannot, and
// nothing about that changes while the process lives, so the first answer
// is cached and every later call is a field read.
type CapabilityProbe struct {
	pool   txBeginner
	logger zerolog.Logger

	mu        sync.Mutex
	checked   bool
	supported bool
}

// NewCapabilityProbe builds an unchecked probe. The store is not touched
// until the first Supported call.
func NewCapabilityProbe(pool txBeginner, logger zerolog.Logger) *CapabilityProbe {
	return &CapabilityProbe{pool: pool, logger: logger}
}

// Supported reports whether the store can run transactions, probing on the
// first call and returning the cached answer afterwards. A probe that
// fails for any reason records "unsupported": running every unit of work
// on the fallback path is safe, silently assuming transactions exist is
// not.
func (p *CapabilityProbe) Supported(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.checked {
		return p.supported
	}
	p.checked = true
	p.supported = p.probe(ctx)
	telemetry.SetTxCapability(p.supported)
	return p.supported
}

// Downgrade records that the store rejected a transaction mid-flight. Used
// by the coordinator when a capability-class error first appears after a
// successful probe, for example when a pooler is swapped in under a live
// process.
func (p *CapabilityProbe) Downgrade(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.checked && !p.supported {
		return
	}
	p.checked = true
	p.supported = false
	p.logger.Warn().Str("reason", reason).Msg("transaction capability downgraded")
	telemetry.SetTxCapability(false)
}

func (p *CapabilityProbe) probe(ctx context.Context) bool {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		if Classify(err) == ClassCapability {
			p.logger.Warn().Err(err).
				Msg("store cannot run transactions; units of work will run without sessions")
		} else {
			p.logger.Error().Err(err).
				Msg("transaction probe failed; conservatively treating transactions as unsupported")
		}
		return false
	}
	_ = tx.Rollback(ctx)
	return true
}
