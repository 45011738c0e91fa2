package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// fakeTx satisfies pgx.Tx for the handful of methods the transaction layer
// touches; everything else panics via the embedded nil interface.
type fakeTx struct {
	pgx.Tx
	commits   int
	rollbacks int
	commitErr error
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.commits++
	return t.commitErr
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.rollbacks++
	return nil
}

// fakeBeginner stands in for the pool.
type fakeBeginner struct {
	beginCalls int
	beginErrs  []error // consumed in order; nil entry means success
	lastTx     *fakeTx
}

func (b *fakeBeginner) BeginTx(ctx context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	b.beginCalls++
	if len(b.beginErrs) > 0 {
		err := b.beginErrs[0]
		b.beginErrs = b.beginErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	b.lastTx = &fakeTx{}
	return b.lastTx, nil
}

func TestCapabilityProbe_SuccessIsMemoized(t *testing.T) {
	beginner := &fakeBeginner{}
	probe := NewCapabilityProbe(beginner, zerolog.Nop())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if !probe.Supported(ctx) {
			t.Fatalf("Supported() call %d = false, want true", i+1)
		}
	}
	if beginner.beginCalls != 1 {
		t.Errorf("probe touched the store %d times, want 1", beginner.beginCalls)
	}
	if beginner.lastTx.rollbacks != 1 {
		t.Errorf("probe transaction rolled back %d times, want 1", beginner.lastTx.rollbacks)
	}
	if beginner.lastTx.commits != 0 {
		t.Errorf("probe transaction committed %d times, want 0", beginner.lastTx.commits)
	}
}

func TestCapabilityProbe_CapabilityErrorCachesFalse(t *testing.T) {
	beginner := &fakeBeginner{beginErrs: []error{
		&pgconn.PgError{Code: "0A000", Message: "transaction blocks not allowed"},
	}}
	probe := NewCapabilityProbe(beginner, zerolog.Nop())

	ctx := context.Background()
	if probe.Supported(ctx) {
		t.Fatal("Supported() = true for a store that rejects transactions")
	}
	if probe.Supported(ctx) {
		t.Fatal("Supported() flipped to true on second call")
	}
	if beginner.beginCalls != 1 {
		t.Errorf("probe touched the store %d times, want 1", beginner.beginCalls)
	}
}

func TestCapabilityProbe_UnknownErrorIsConservativelyFalse(t *testing.T) {
	beginner := &fakeBeginner{beginErrs: []error{errors.New("connection refused")}}
	probe := NewCapabilityProbe(beginner, zerolog.Nop())

	if probe.Supported(context.Background()) {
		t.Fatal("Supported() = true after a failed probe")
	}
	if beginner.beginCalls != 1 {
		t.Errorf("probe touched the store %d times, want 1", beginner.beginCalls)
	}
}

func TestCapabilityProbe_Downgrade(t *testing.T) {
	beginner := &fakeBeginner{}
	probe := NewCapabilityProbe(beginner, zerolog.Nop())

	ctx := context.Background()
	if !probe.Supported(ctx) {
		t.Fatal("expected initial probe to succeed")
	}

	probe.Downgrade("pooler swapped in")
	if probe.Supported(ctx) {
		t.Fatal("Supported() = true after Downgrade")
	}
	if beginner.beginCalls != 1 {
		t.Errorf("downgrade re-probed the store: %d begin calls, want 1", beginner.beginCalls)
	}

	// downgrading an already-downgraded probe stays false
	probe.Downgrade("again")
	if probe.Supported(ctx) {
		t.Fatal("Supported() = true after repeated Downgrade")
	}
}

func TestCapabilityProbe_DowngradeBeforeFirstProbeSkipsProbe(t *testing.T) {
	beginner := &fakeBeginner{}
	probe := NewCapabilityProbe(beginner, zerolog.Nop())

	probe.Downgrade("known-bad topology")
	if probe.Supported(context.Background()) {
		t.Fatal("Supported() = true, want false")
	}
	if beginner.beginCalls != 0 {
		t.Errorf("store probed %d times after pre-downgrade, want 0", beginner.beginCalls)
	}
}
