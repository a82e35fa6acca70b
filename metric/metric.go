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

// Package metric defines the per-keyword measurement types shared by the
// cache, the upstream adapters and the HTTP surface.
package metric

import "math"

// Record is the resolved measurement stored for a keyword. Either field may
// be nil independently; nil means "not determined" and is distinct from a
// reported zero.
type Record struct {
	AdsMonthlyVolume *int64   `json:"googleAdsAvgMonthlySearches"`
	TrendsScore      *float64 `json:"googleTrendsScore"`
	CachedAt         int64    `json:"cached_at,omitempty"`
}

// KeywordMetric is the wire shape returned to callers.
type KeywordMetric struct {
	Keyword          string   `json:"keyword"`
	AdsMonthlyVolume *int64   `json:"googleAdsAvgMonthlySearches"`
	TrendsScore      *float64 `json:"googleTrendsScore"`
}

// Round1 rounds a trends score to one decimal place, the precision both
// stored and emitted.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Round1p rounds through a pointer, preserving nil.
func Round1p(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := Round1(*v)
	return &r
}
