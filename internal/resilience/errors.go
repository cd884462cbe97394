package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Kinds recorded on page errors. They tell a re-run whether the page is
// worth fetching again.
const (
	KindTransient   = "transient"
	KindRateLimited = "rate_limited"
	KindNotFound    = "not_found"
	KindRejected    = "rejected"
	KindMalformed   = "malformed"
	KindBreakerOpen = "breaker_open"
	KindCanceled    = "canceled"
	KindPermanent   = "permanent"
)

// StatusError is a non-2xx answer from the catalog service.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d from %s", e.Code, e.URL)
}

// Retryable reports whether the status is worth asking for again.
func (e *StatusError) Retryable() bool {
	return RetryableStatus(e.Code)
}

// RetryableStatus reports whether a catalog response status is worth
// retrying: request timeouts, throttling and gateway trouble.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// MarkRetryable flags err as safe to retry, e.g. a body cut off mid-read.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return retryableError{err: err}
}

// IsRetryable reports whether err, or anything in its chain, is a failure a
// later attempt could get past.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var re retryableError
	if errors.As(err, &re) {
		return true
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	// Some transports only report these as text.
	msg := strings.ToLower(err.Error())
	for _, p := range retryableMessages {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

var retryableMessages = []string{
	"connection reset by peer",
	"server closed idle connection",
	"tls handshake timeout",
	"temporary failure in name resolution",
	"unexpected eof",
}

// ClassifyError returns the kind recorded for a catalog request that failed
// for good.
func ClassifyError(err error) string {
	var (
		se  *StatusError
		syn *json.SyntaxError
		typ *json.UnmarshalTypeError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrBreakerOpen):
		return KindBreakerOpen
	case errors.As(err, &se):
		switch {
		case se.Code == http.StatusTooManyRequests:
			return KindRateLimited
		case se.Code == http.StatusNotFound || se.Code == http.StatusGone:
			return KindNotFound
		case se.Retryable():
			return KindTransient
		}
		return KindRejected
	case errors.As(err, &syn), errors.As(err, &typ):
		return KindMalformed
	case IsRetryable(err):
		return KindTransient
	}
	return KindPermanent
}
