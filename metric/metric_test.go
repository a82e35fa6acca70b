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

package metric

import (
	"encoding/json"
	"testing"
)

func TestRound1(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{42.04, 42},
		{42.05, 42.1},
		{99.99, 100},
		{63.333333, 63.3},
	}
	for _, tt := range tests {
		if got := Round1(tt.in); got != tt.want {
			t.Errorf("Round1(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRound1p(t *testing.T) {
	if Round1p(nil) != nil {
		t.Fatal("Round1p(nil) != nil")
	}
	v := 17.26
	if got := Round1p(&v); *got != 17.3 {
		t.Errorf("Round1p(&17.26) = %v, want 17.3", *got)
	}
}

// Absent metrics serialize as explicit JSON nulls, not omitted fields.
func TestKeywordMetricNullFields(t *testing.T) {
	raw, err := json.Marshal(KeywordMetric{Keyword: "espresso"})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"keyword":"espresso","googleAdsAvgMonthlySearches":null,"googleTrendsScore":null}`
	if string(raw) != want {
		t.Errorf("marshal = %s, want %s", raw, want)
	}
}
