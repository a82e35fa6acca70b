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

package upstream

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kwmetrics/kwmetricsd/clock"
	"github.com/kwmetrics/kwmetricsd/telemetry"
)

// Breaker is a two-state circuit breaker. There is no half-open state: once
// the cooldown elapses the failure counter is reset and the next call is
// admitted directly.
type Breaker struct {
	provider  string
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time // zero while closed

	clk clock.Clock
	log *zap.SugaredLogger
	tel *telemetry.Metrics
}

func NewBreaker(provider string, threshold int, cooldown time.Duration, clk clock.Clock, log *zap.SugaredLogger, tel *telemetry.Metrics) *Breaker {
	return &Breaker{
		provider:  provider,
		threshold: threshold,
		cooldown:  cooldown,
		clk:       clk,
		log:       log,
		tel:       tel,
	}
}

// Allow admits or rejects the next upstream call. The breaker opens lazily:
// the first admission check after the counter reaches the threshold stamps
// openedAt.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures < b.threshold {
		return nil
	}
	now := b.clk.Now()
	if b.openedAt.IsZero() {
		b.openedAt = now
		b.log.Warnw("circuit breaker opened", "provider", b.provider, "failures", b.failures)
		b.tel.BreakerState(b.provider, true)
	}
	elapsed := now.Sub(b.openedAt)
	if elapsed < b.cooldown {
		return &BreakerOpenError{Provider: b.provider, RetryAfter: b.cooldown - elapsed}
	}
	b.openedAt = time.Time{}
	b.failures = 0
	b.log.Infow("circuit breaker reset", "provider", b.provider)
	b.tel.BreakerState(b.provider, false)
	return nil
}

// Success resets the consecutive failure counter.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}

// Failure counts one more consecutive failure of any kind.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
}

// ForceOpen pins the counter at the threshold so the next admission check
// opens the breaker. Used when quota-class retries exhaust.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures < b.threshold {
		b.failures = b.threshold
	}
}

// Failures reports the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
