package store

import (
	"math/rand"
	"strings"
	"time"
)

// retryConfig controls retries of ledger writes that hit transient SQLite
// errors. Several agents writing statements into one WAL database can see
// SQLITE_BUSY, SQLITE_LOCKED or IOERR_SHORT_READ (522) even with a busy
// timeout set.
type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var defaultRetryConfig = retryConfig{
	maxRetries: 3,
	baseDelay:  50 * time.Millisecond,
	maxDelay:   500 * time.Millisecond,
}

// transientMarkers are substrings of modernc.org/sqlite error messages
// that identify contention rather than a real failure.
var transientMarkers = []string{
	"SQLITE_BUSY",
	"SQLITE_LOCKED",
	"IOERR_SHORT_READ",
	"database is locked",
	"database table is locked",
	"(5)",
	"(6)",
	"(522)",
}

func isTransientSQLiteErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// retryOp runs fn until it succeeds, fails permanently, or runs out of
// retries. onRetry, if set, is called before each new attempt.
func retryOp(cfg retryConfig, onRetry func(attempt int, err error), fn func() error) error {
	var err error
	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		if err = fn(); err == nil || !isTransientSQLiteErr(err) {
			return err
		}
		if attempt == cfg.maxRetries {
			break
		}
		if onRetry != nil {
			onRetry(attempt+1, err)
		}
		time.Sleep(backoffDelay(cfg, attempt))
	}
	return err
}

// backoffDelay is baseDelay * 2^attempt, capped at maxDelay, plus up to
// baseDelay of jitter.
func backoffDelay(cfg retryConfig, attempt int) time.Duration {
	delay := cfg.baseDelay << uint(attempt)
	if delay > cfg.maxDelay || delay <= 0 {
		delay = cfg.maxDelay
	}
	return delay + time.Duration(rand.Int63n(int64(cfg.baseDelay)))
}
