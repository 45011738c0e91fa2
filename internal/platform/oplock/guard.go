// Package oplock implements the optimistic concurrency primitives shared
// by every versioned document. A caller that read a document at version N
// may only write it back while the stored version is still N; the second
// of two racing writers observes the mismatch and fails instead of
// silently overwriting the first.
package oplock

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Versioned is implemented by domain models carrying a version counter.
type Versioned interface {
	GetVersionID() int
	SetVersionID(v int)
}

// ConflictError reports that a document moved past the version the caller
// was holding. It is surfaced to the caller as a 409-class condition and
// never retried automatically: the caller must re-fetch and decide.
type ConflictError struct {
	Resource string
	ID       string
	Expected int
	Actual   int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: version conflict: expected version %d but document is at version %d",
		e.Resource, e.ID, e.Expected, e.Actual)
}

// IsConflict reports whether err is, or wraps, a version conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// Check compares the version a caller holds against the version just read
// inside the session. A mismatch returns ConflictError.
func Check(resource, id string, expected, actual int) error {
	if expected != actual {
		return &ConflictError{Resource: resource, ID: id, Expected: expected, Actual: actual}
	}
	return nil
}

// Bump advances a document's version by exactly one after a successful
// guarded write.
func Bump(v Versioned) {
	v.SetVersionID(v.GetVersionID() + 1)
}

// ParseETag extracts the version number from an ETag value like W/"3" or "3".
func ParseETag(etag string) (int, error) {
	etag = strings.TrimSpace(etag)
	etag = strings.TrimPrefix(etag, "W/")
	etag = strings.Trim(etag, `"`)

	v, err := strconv.Atoi(etag)
	if err != nil {
		return 0, fmt.Errorf("ETag must contain a numeric version: %s", etag)
	}
	return v, nil
}

// FormatETag creates a weak ETag from a version ID.
func FormatETag(versionID int) string {
	return fmt.Sprintf(`W/"%d"`, versionID)
}
