// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package errors

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Kind classifies a pipeline failure and determines the worker's reaction
// to it. The mapping from Kind to queue action lives with the workers; this
// package only decides what kind of failure an error is.
type Kind int

const (
	// KindTransientIO covers failures expected to clear on retry: queue
	// claim timeouts, DB deadlocks and serialization aborts, filesystem
	// and network hiccups.
	KindTransientIO Kind = iota
	// KindInputCorrupt marks input that will never parse; the owning image
	// is failed terminally and the item is not retried.
	KindInputCorrupt
	// KindInferenceOOM is device memory exhaustion; the item is retried
	// without any state change so an operator can lower concurrency.
	KindInferenceOOM
	// KindInferenceTimeout is a per-item deadline expiry.
	KindInferenceTimeout
	// KindLogicViolation marks a lost CAS race; another worker owns the
	// item and the loser acks silently.
	KindLogicViolation
	// KindProfileRace is row-lock contention on a Deer profile; the worker
	// re-reads and re-scores without surfacing an error.
	KindProfileRace
	// KindFatal is unrecoverable at process scope (missing model file,
	// bad configuration); the worker refuses to start.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransientIO:
		return "transient_io"
	case KindInputCorrupt:
		return "input_corrupt"
	case KindInferenceOOM:
		return "inference_oom"
	case KindInferenceTimeout:
		return "inference_timeout"
	case KindLogicViolation:
		return "logic_violation"
	case KindProfileRace:
		return "profile_race"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Sentinels raised by pipeline stages. Wrap them freely; Classify walks the
// chain with errors.Is.
var (
	ErrCorruptInput     = errors.New("input corrupt")
	ErrDeviceOOM        = errors.New("inference device out of memory")
	ErrInferenceTimeout = errors.New("inference deadline exceeded")
	ErrStatusConflict   = errors.New("status transition conflict")
	ErrProfileContended = errors.New("profile row contended")
	ErrFatal            = errors.New("fatal startup failure")
)

// Postgres SQLSTATE codes that clear on retry.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
	pgLockNotAvailable     = "55P03"
)

// Classify maps an error chain onto the pipeline taxonomy. Unrecognised
// errors classify as transient: the retry budget bounds the damage and the
// dead-letter queue catches repeat offenders.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrFatal):
		return KindFatal
	case errors.Is(err, ErrCorruptInput):
		return KindInputCorrupt
	case errors.Is(err, ErrDeviceOOM):
		return KindInferenceOOM
	case errors.Is(err, ErrInferenceTimeout):
		return KindInferenceTimeout
	case errors.Is(err, ErrStatusConflict):
		return KindLogicViolation
	case errors.Is(err, ErrProfileContended):
		return KindProfileRace
	case errors.Is(err, context.DeadlineExceeded):
		return KindInferenceTimeout
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected:
			return KindTransientIO
		case pgLockNotAvailable:
			return KindProfileRace
		case pgUniqueViolation:
			return KindLogicViolation
		}
		return KindTransientIO
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return KindLogicViolation
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransientIO
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		if errors.Is(pathErr.Err, syscall.ENOENT) {
			return KindInputCorrupt
		}
		return KindTransientIO
	}

	// Device OOM surfaces from runtime backends as text, not typed errors.
	if msg := strings.ToLower(err.Error()); strings.Contains(msg, "out of memory") {
		return KindInferenceOOM
	}

	return KindTransientIO
}

// Retryable reports whether the queue item should be nacked for another
// attempt rather than terminally resolved.
func (k Kind) Retryable() bool {
	switch k {
	case KindTransientIO, KindInferenceOOM, KindInferenceTimeout, KindProfileRace:
		return true
	default:
		return false
	}
}

// maxSummaryLen bounds what Summary emits; status columns and nack reasons
// hold short classifications, never stack traces.
const maxSummaryLen = 200

// Summary folds an error chain into a short kind-prefixed message fit for
// a status column or a queue failure reason.
func Summary(err error) string {
	msg := Classify(err).String() + ": " + err.Error()
	if len(msg) > maxSummaryLen {
		msg = msg[:maxSummaryLen]
	}
	return msg
}
