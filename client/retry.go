package client

import (
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/remcp/protocol"
	"github.com/opd-ai/remcp/rate"
)

// DefaultMaxAttempts bounds the retry loop around one transfer.
const DefaultMaxAttempts = 5

// DefaultBackoff is the fixed pause between attempts.
const DefaultBackoff = time.Second

// Policy describes how a transfer is retried: how many attempts, how long
// to pause between them, and which errors are worth another try.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
	Retryable   func(error) bool
}

// DefaultPolicy returns the stock retry policy: five attempts, one second
// apart, retrying only busy rejections and transient transport failures.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     DefaultBackoff,
		Retryable:   RetryableError,
	}
}

// Do runs fn up to p.MaxAttempts times, sleeping p.Backoff between
// attempts. Non-retryable errors abort immediately without consuming
// further attempts. The sleeper is injectable so retry timing is testable
// without real delays.
func (p Policy) Do(sleeper rate.Sleeper, fn func() error) error {
	if sleeper == nil {
		sleeper = rate.RealSleeper{}
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		logrus.WithFields(logrus.Fields{
			"function":     "Do",
			"attempt":      attempt,
			"max_attempts": attempts,
			"backoff":      p.Backoff,
			"error":        err.Error(),
		}).Info("Transfer attempt failed, retrying")
		sleeper.Sleep(p.Backoff)
	}
	return err
}

// RetryableError reports whether err is transient: a busy rejection from
// the server, a reset or timed-out connection, or a connection lost
// mid-payload. Protocol violations and file errors are final.
func RetryableError(err error) bool {
	var werr *protocol.WireError
	if errors.As(err, &werr) {
		return werr.Retryable()
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return false
}
