package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Class buckets a driver error by how the coordinator must react to it.
type Class int

const (
	// ClassFatal errors propagate immediately; retrying cannot help.
	ClassFatal Class = iota
	// ClassTransient errors (serialization failures, deadlocks, retriable
	// network faults) may succeed on a clean re-execution.
	ClassTransient
	// ClassCapability errors mean this topology cannot run transactions at
	// all; the caller should downgrade to the no-session path.
	ClassCapability
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassCapability:
		return "capability"
	default:
		return "fatal"
	}
}

// SQLSTATE codes from the backend. 40001/40P01 are the conflict codes that
// appear under concurrent repeatable-read transactions; 55P03 shows up on
// NOWAIT lock acquisition. 25006 is a read-only standby rejecting a write,
// 0A000 is a pooler or proxy refusing the transaction protocol itself.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeReadOnlyTransaction  = "25006"
	codeFeatureNotSupported  = "0A000"
)

// capabilityPhrases is the message-sniffing fallback for middleware that
// rejects transactions without a proper SQLSTATE. This file is the only
// place in the repository allowed to inspect error strings.
var capabilityPhrases = []string{
	"statement pooling",
	"read-only sql transaction",
	"transactions are not supported",
}

// Classify maps a store error onto the closed reaction enum. Domain errors
// and anything unrecognized classify as fatal, which is the safe direction:
// a wrongly-fatal error costs one request, a wrongly-transient error hides
// a bug behind retries.
func Classify(err error) Class {
	if err == nil {
		return ClassFatal
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassFatal
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return ClassTransient
		case codeReadOnlyTransaction, codeFeatureNotSupported:
			return ClassCapability
		}
		return ClassFatal
	}

	if pgconn.SafeToRetry(err) {
		return ClassTransient
	}

	msg := strings.ToLower(err.Error())
	for _, phrase := range capabilityPhrases {
		if strings.Contains(msg, phrase) {
			return ClassCapability
		}
	}

	return ClassFatal
}
