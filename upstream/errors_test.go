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
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrorClassification(t *testing.T) {
	transient := &TransientError{Provider: "ads", Err: errors.New("boom")}
	quota := &QuotaError{Provider: "trends", Err: errors.New("429")}
	open := &BreakerOpenError{Provider: "ads", RetryAfter: time.Minute}
	over := &OverLimitError{RetryAfter: time.Minute}

	tests := []struct {
		err                                  error
		transient, quota, brkOpen, overLimit bool
	}{
		{transient, true, false, false, false},
		{quota, false, true, false, false},
		{open, false, false, true, false},
		{over, false, false, false, true},
		{errors.New("plain"), false, false, false, false},
		// Classification must survive wrapping.
		{fmt.Errorf("call failed: %w", transient), true, false, false, false},
		{fmt.Errorf("call failed: %w", quota), false, true, false, false},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.transient {
			t.Errorf("IsTransient(%v) = %v", tt.err, got)
		}
		if got := IsQuota(tt.err); got != tt.quota {
			t.Errorf("IsQuota(%v) = %v", tt.err, got)
		}
		if got := IsBreakerOpen(tt.err); got != tt.brkOpen {
			t.Errorf("IsBreakerOpen(%v) = %v", tt.err, got)
		}
		if got := IsOverLimit(tt.err); got != tt.overLimit {
			t.Errorf("IsOverLimit(%v) = %v", tt.err, got)
		}
	}
}

func TestQuotaSentinelWraps(t *testing.T) {
	err := fmt.Errorf("keyword %q: %w", "coffee", ErrQuotaExceeded)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatal("wrapped sentinel not detected")
	}
}
