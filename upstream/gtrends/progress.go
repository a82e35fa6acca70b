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
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/gofrs/flock"
)

// progressTTL is how long a snapshot remains usable after a crash.
const progressTTL = 24 * time.Hour

// progressSnapshot is the durable record of a bulk run: resolved scores,
// keywords not yet attempted, and keywords given up on.
type progressSnapshot struct {
	Completed map[string]*float64 `json:"completed"`
	Remaining []string            `json:"remaining"`
	Failed    []string            `json:"failed"`
	Timestamp float64             `json:"timestamp"` // unix seconds
}

// loadProgress seeds a bulk run from the snapshot file. Missing, corrupt
// or stale snapshots yield an empty seed.
func (c *Client) loadProgress() map[string]*float64 {
	flk := flock.New(c.progressPath + ".lock")
	if err := flk.Lock(); err != nil {
		c.log.Warnw("progress lock failed", "path", c.progressPath, "err", err)
		return make(map[string]*float64)
	}
	raw, err := os.ReadFile(c.progressPath)
	flk.Unlock()
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.Warnw("progress read failed", "path", c.progressPath, "err", err)
		}
		return make(map[string]*float64)
	}

	var snap progressSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		c.log.Warnw("progress file corrupt, ignoring", "path", c.progressPath, "err", err)
		return make(map[string]*float64)
	}
	age := c.clk.Now().Sub(time.Unix(0, int64(snap.Timestamp*float64(time.Second))))
	if age > progressTTL {
		c.log.Infow("ignoring stale progress", "path", c.progressPath, "age", age)
		return make(map[string]*float64)
	}

	c.mu.Lock()
	for _, kw := range snap.Failed {
		c.failed[kw] = struct{}{}
	}
	c.mu.Unlock()

	if snap.Completed == nil {
		snap.Completed = make(map[string]*float64)
	}
	c.log.Infow("progress loaded",
		"completed", len(snap.Completed), "remaining", len(snap.Remaining))
	return snap.Completed
}

// saveProgress persists the run state so a crashed or quota-aborted run
// can resume later.
func (c *Client) saveProgress(results map[string]*float64, remaining []string) {
	c.mu.Lock()
	failed := make([]string, 0, len(c.failed))
	for kw := range c.failed {
		failed = append(failed, kw)
	}
	c.mu.Unlock()
	sort.Strings(failed)

	snap := progressSnapshot{
		Completed: results,
		Remaining: remaining,
		Failed:    failed,
		Timestamp: float64(c.clk.Now().UnixNano()) / float64(time.Second),
	}
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		c.log.Errorw("progress marshal failed", "err", err)
		return
	}

	flk := flock.New(c.progressPath + ".lock")
	if err := flk.Lock(); err != nil {
		c.log.Warnw("progress lock failed", "path", c.progressPath, "err", err)
		return
	}
	defer flk.Unlock()

	tmp := c.progressPath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		c.log.Errorw("progress write failed", "path", tmp, "err", err)
		return
	}
	if err := os.Rename(tmp, c.progressPath); err != nil {
		c.log.Errorw("progress rename failed", "path", c.progressPath, "err", err)
		return
	}
	c.log.Infow("progress saved", "completed", len(results), "remaining", len(remaining))
}

func (c *Client) removeProgress() {
	if err := os.Remove(c.progressPath); err != nil && !os.IsNotExist(err) {
		c.log.Warnw("progress remove failed", "path", c.progressPath, "err", err)
	}
}
