package stt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"scribeflow/internal/media"
)

// Kind is the shared error vocabulary every provider reports through.
type Kind string

const (
	KindInput       Kind = "InputError"
	KindAuth        Kind = "AuthError"
	KindQuota       Kind = "QuotaError"
	KindTransient   Kind = "TransientError"
	KindRateLimited Kind = "RateLimited"
	KindUnavailable Kind = "Unavailable"
	KindCancelled   Kind = "Cancelled"
)

// Error is the only error type a Provider returns.
type Error struct {
	Provider   string
	Kind       Kind
	Message    string
	StatusCode int
	// RetryAfter is the provider's retry hint; zero means none was given.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an *Error without an underlying cause.
func NewError(provider string, kind Kind, format string, args ...any) *Error {
	return &Error{Provider: provider, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind carried by err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// FromHTTPStatus maps a non-2xx provider response to the shared vocabulary.
func FromHTTPStatus(provider string, status int, header http.Header, body string) *Error {
	e := &Error{
		Provider:   provider,
		StatusCode: status,
		Message:    preview(body),
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindAuth
	case status == http.StatusPaymentRequired || mentionsQuota(body):
		e.Kind = KindQuota
	case status == http.StatusForbidden:
		e.Kind = KindAuth
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		e.RetryAfter = parseRetryAfter(header, time.Now())
	case status == http.StatusBadRequest,
		status == http.StatusRequestEntityTooLarge,
		status == http.StatusUnsupportedMediaType,
		status == http.StatusUnprocessableEntity:
		e.Kind = KindInput
	case status == http.StatusRequestTimeout || status >= 500:
		e.Kind = KindTransient
	default:
		e.Kind = KindUnavailable
	}
	return e
}

// FromTransport wraps an error raised before a response was received.
func FromTransport(provider string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, context.Canceled):
		return &Error{Provider: provider, Kind: KindCancelled, Message: "request cancelled", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Provider: provider, Kind: KindTransient, Message: "request timed out", Err: err}
	default:
		return &Error{Provider: provider, Kind: KindTransient, Message: "request failed", Err: err}
	}
}

// FromConversion maps a media.Converter failure: a missing tool makes the
// provider unavailable, anything else means the input cannot be used.
func FromConversion(provider string, err error) *Error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return FromTransport(provider, err)
	}
	var ce *media.ConvertError
	if errors.As(err, &ce) && ce.Missing {
		return &Error{Provider: provider, Kind: KindUnavailable, Message: "media converter not installed", Err: err}
	}
	return &Error{Provider: provider, Kind: KindInput, Message: "audio conversion failed", Err: err}
}

// noSpeech reports an empty recognition result. Another engine may still
// hear speech the first one missed, so it does not stop the chain.
func noSpeech(provider string) *Error {
	return NewError(provider, KindUnavailable, "no speech detected in audio")
}

func mentionsQuota(body string) bool {
	b := strings.ToLower(body)
	return strings.Contains(b, "quota") || strings.Contains(b, "billing") || strings.Contains(b, "insufficient_funds")
}

func parseRetryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

func preview(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > 300 {
		return body[:300] + "..."
	}
	return body
}
