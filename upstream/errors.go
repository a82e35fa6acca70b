// Copyright 2026 The kwmetricsd Authors
// This file is part of kwmetricsd.
//
// kwmetricsd is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// kwmetricsd is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with kwmetricsd. If not, see <http://www.gnu.org/licenses/>.

// Package upstream defines the error taxonomy produced at the adapter
// boundary and the circuit breaker shared by both provider adapters.
// Callers classify errors with errors.As/Is, never by message inspection.
package upstream

import (
	"errors"
	"fmt"
	"time"
)

// TransientError marks a retryable upstream fault: network errors, 5xx
// responses and provider-typed failures.
type TransientError struct {
	Provider string
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient upstream error: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// QuotaError marks a quota-class failure: CAPTCHA challenges, HTTP 429,
// "too many requests" and explicit quota rejections.
type QuotaError struct {
	Provider string
	Err      error
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s: quota exhausted: %v", e.Provider, e.Err)
}

func (e *QuotaError) Unwrap() error { return e.Err }

// BreakerOpenError is returned without touching the upstream while a
// breaker is within its cooldown.
type BreakerOpenError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *BreakerOpenError) Error() string {
	return fmt.Sprintf("%s: circuit breaker open, retry in %s", e.Provider, e.RetryAfter.Round(time.Second))
}

// OverLimitError is returned when the trends hourly request cap is reached.
type OverLimitError struct {
	RetryAfter time.Duration
}

func (e *OverLimitError) Error() string {
	return fmt.Sprintf("hourly request limit reached, retry in %s", e.RetryAfter.Round(time.Second))
}

// ErrQuotaExceeded signals that quota-class retries were exhausted and the
// current bulk run must abort, persisting progress.
var ErrQuotaExceeded = errors.New("upstream quota exceeded after retries")

func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

func IsQuota(err error) bool {
	var q *QuotaError
	return errors.As(err, &q)
}

func IsBreakerOpen(err error) bool {
	var b *BreakerOpenError
	return errors.As(err, &b)
}

func IsOverLimit(err error) bool {
	var o *OverLimitError
	return errors.As(err, &o)
}
