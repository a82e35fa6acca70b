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

// Package clock abstracts wall-clock reads and cancellable sleeps so that
// breaker cooldowns, pacing delays and TTL checks can run under a simulated
// clock in tests.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock is the time source used by all time-dependent components.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is cancelled, returning ctx.Err()
	// in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// System implements Clock with real time.
type System struct{}

func (System) Now() time.Time { return time.Now() }

func (System) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Simulated implements Clock with a manually driven time. Sleep advances
// the simulated time immediately instead of blocking, and records the total
// duration slept so tests can assert on pacing behaviour.
type Simulated struct {
	mu    sync.Mutex
	now   time.Time
	slept time.Duration
}

// NewSimulated returns a simulated clock starting at an arbitrary fixed
// instant.
func NewSimulated() *Simulated {
	return &Simulated{now: time.Unix(1700000000, 0)}
}

func (s *Simulated) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *Simulated) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	s.mu.Lock()
	s.now = s.now.Add(d)
	s.slept += d
	s.mu.Unlock()
	return nil
}

// Advance moves the simulated time forward without counting as a sleep.
func (s *Simulated) Advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	s.mu.Unlock()
}

// Slept reports the cumulative duration passed to Sleep.
func (s *Simulated) Slept() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slept
}
