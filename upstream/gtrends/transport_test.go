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

package gtrends

import (
	"testing"

	"github.com/kwmetrics/kwmetricsd/upstream"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		status    int
		body      string
		quota     bool
		transient bool
	}{
		{429, "", true, false},
		{200, "please solve this CAPTCHA", true, false},
		{403, "Too Many Requests from your network", true, false},
		{403, "quota exceeded for this project", true, false},
		{500, "internal error", false, true},
		{503, "", false, true},
		{404, "not found", false, false},
	}
	for _, tt := range tests {
		err := classify(tt.status, []byte(tt.body))
		if got := upstream.IsQuota(err); got != tt.quota {
			t.Errorf("status %d %q: IsQuota = %v", tt.status, tt.body, got)
		}
		if got := upstream.IsTransient(err); got != tt.transient {
			t.Errorf("status %d %q: IsTransient = %v", tt.status, tt.body, got)
		}
	}
}

func TestStripPrefix(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`)]}'` + "\n" + `{"ok":1}`, `{"ok":1}`},
		{`{"ok":1}`, `{"ok":1}`},
		{``, ``},
		{`no json here`, `no json here`},
	}
	for _, tt := range tests {
		if got := string(stripPrefix([]byte(tt.in))); got != tt.want {
			t.Errorf("stripPrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
