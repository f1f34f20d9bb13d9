package pipeline

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"

	"scribeflow/internal/stt"
)

// Verdict decides whether the chain may continue after a failed attempt.
type Verdict string

const (
	// VerdictFatal stops the job regardless of remaining engines.
	VerdictFatal Verdict = "fatal"
	// VerdictRetryable is a transient failure worth trying elsewhere.
	VerdictRetryable Verdict = "retryable"
	// VerdictUnavailable is an unrecognized failure. It continues the chain
	// like VerdictRetryable but is logged at a higher level.
	VerdictUnavailable Verdict = "unavailable"
)

// Classification is the outcome of Classify.
type Classification struct {
	Provider string
	Verdict  Verdict
	Kind     stt.Kind
	Message  string
}

// Classify labels a failed provider call. Rules, in priority order: auth,
// quota and input errors are fatal; network failures are retryable; rate
// limiting is retryable only with a retry hint; everything else is
// unavailable. It never branches on provider identity.
func Classify(provider string, err error) Classification {
	c := Classification{Provider: provider, Verdict: VerdictUnavailable, Kind: stt.KindUnavailable}
	if err == nil {
		return c
	}
	c.Message = err.Error()

	var se *stt.Error
	if errors.As(err, &se) {
		c.Kind = se.Kind
		c.Message = se.Message
	}

	switch c.Kind {
	case stt.KindAuth, stt.KindQuota, stt.KindInput:
		c.Verdict = VerdictFatal
		return c
	}

	if c.Kind == stt.KindTransient || isNetworkError(err) {
		if c.Kind == stt.KindUnavailable {
			c.Kind = stt.KindTransient
		}
		c.Verdict = VerdictRetryable
		return c
	}

	if c.Kind == stt.KindRateLimited && se != nil && se.RetryAfter > 0 {
		c.Verdict = VerdictRetryable
		return c
	}

	return c
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
