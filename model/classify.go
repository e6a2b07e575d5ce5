package model

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Fault classifies a backend failure for retry purposes.
type Fault int

const (
	// FaultTransient failures are expected to resolve on retry: connection
	// resets, timeouts, rate limits and 5xx-class statuses.
	FaultTransient Fault = iota
	// FaultFatal failures cannot be fixed by retrying: authentication,
	// malformed requests, quota exhaustion.
	FaultFatal
)

func (f Fault) String() string {
	if f == FaultTransient {
		return "transient"
	}
	return "fatal"
}

var transientMarkers = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"ECONNRESET",
	"ETIMEDOUT",
	"timeout",
	"429",
	"rate limit",
	"500",
	"502",
	"503",
	"504",
	"overloaded",
}

var fatalMarkers = []string{
	"401",
	"403",
	"invalid api key",
	"authentication",
	"invalid request",
	"malformed",
	"quota",
	"billing",
}

// Classify buckets a backend error. Typed network errors and context
// deadlines are transient; otherwise the error text is matched against known
// markers, with fatal markers taking precedence so "401" inside a longer
// message is never retried. Unrecognized errors default to transient - one
// wasted retry is cheaper than dropping a recoverable call.
func Classify(err error) Fault {
	if err == nil {
		return FaultFatal
	}
	if errors.Is(err, context.Canceled) {
		return FaultFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FaultTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return FaultTransient
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range fatalMarkers {
		if strings.Contains(msg, strings.ToLower(marker)) {
			return FaultFatal
		}
	}
	for _, marker := range transientMarkers {
		if strings.Contains(msg, strings.ToLower(marker)) {
			return FaultTransient
		}
	}
	return FaultTransient
}

// IsTransient reports whether an error should be retried.
func IsTransient(err error) bool { return err != nil && Classify(err) == FaultTransient }
