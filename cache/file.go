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

package cache

import (
	"context"
	"encoding/gob"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/hashicorp/golang-lru/simplelru"
	"go.uber.org/zap"

	"github.com/kwmetrics/kwmetricsd/clock"
	"github.com/kwmetrics/kwmetricsd/metric"
)

// File is the on-disk fallback backend: a bounded, insertion-ordered map
// where a hit bumps the entry to the tail and eviction takes the head.
// The whole mapping is snapshotted to disk on every mutation; losing the
// snapshot only costs warm state.
type File struct {
	mu   sync.Mutex
	path string
	ord  *simplelru.LRU
	flk  *flock.Flock
	clk  clock.Clock
	log  *zap.SugaredLogger
}

type fileEntry struct {
	Value     metric.Record
	ExpiresAt int64 // unix nanoseconds
}

type snapEntry struct {
	Key   string
	Entry fileEntry
}

// NewFile loads any existing snapshot at path, dropping entries that have
// expired in the meantime. A corrupt or missing snapshot yields an empty
// cache.
func NewFile(path string, maxEntries int, clk clock.Clock, log *zap.SugaredLogger) *File {
	ord, err := simplelru.NewLRU(maxEntries, nil)
	if err != nil {
		// maxEntries is validated at config load; keep a minimal cache
		// rather than crash if it slips through.
		ord, _ = simplelru.NewLRU(1, nil)
	}
	f := &File{
		path: path,
		ord:  ord,
		flk:  flock.New(path + ".lock"),
		clk:  clk,
		log:  log,
	}
	f.load()
	return f
}

func (f *File) Get(_ context.Context, key string) (metric.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.ord.Peek(key)
	if !ok {
		return metric.Record{}, false
	}
	ent := v.(fileEntry)
	if f.clk.Now().UnixNano() >= ent.ExpiresAt {
		f.ord.Remove(key)
		f.persist()
		return metric.Record{}, false
	}
	f.ord.Get(key) // recency bump
	f.persist()
	return ent.Value, true
}

func (f *File) Set(_ context.Context, key string, rec metric.Record, ttl time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ord.Add(key, fileEntry{
		Value:     rec,
		ExpiresAt: f.clk.Now().Add(ttl).UnixNano(),
	})
	f.persist()
	return true
}

func (f *File) Exists(_ context.Context, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, ok := f.ord.Peek(key)
	if !ok {
		return false
	}
	if f.clk.Now().UnixNano() >= v.(fileEntry).ExpiresAt {
		f.ord.Remove(key)
		f.persist()
		return false
	}
	return true
}

func (f *File) Delete(_ context.Context, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.ord.Remove(key) {
		return false
	}
	f.persist()
	return true
}

// Len reports the number of entries, expired or not.
func (f *File) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ord.Len()
}

// persist snapshots the ordered mapping, oldest first, under the file lock.
// Callers hold f.mu.
func (f *File) persist() {
	entries := make([]snapEntry, 0, f.ord.Len())
	for _, k := range f.ord.Keys() { // oldest to newest
		if v, ok := f.ord.Peek(k); ok {
			entries = append(entries, snapEntry{Key: k.(string), Entry: v.(fileEntry)})
		}
	}

	if err := f.flk.Lock(); err != nil {
		f.log.Errorw("cache snapshot lock failed", "path", f.path, "err", err)
		return
	}
	defer f.flk.Unlock()

	tmp := f.path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		f.log.Errorw("cache snapshot create failed", "path", tmp, "err", err)
		return
	}
	if err := gob.NewEncoder(out).Encode(entries); err != nil {
		out.Close()
		os.Remove(tmp)
		f.log.Errorw("cache snapshot encode failed", "path", tmp, "err", err)
		return
	}
	if err := out.Close(); err != nil {
		f.log.Errorw("cache snapshot close failed", "path", tmp, "err", err)
		return
	}
	if err := os.Rename(tmp, f.path); err != nil {
		f.log.Errorw("cache snapshot rename failed", "path", f.path, "err", err)
	}
}

func (f *File) load() {
	if err := f.flk.Lock(); err != nil {
		f.log.Errorw("cache snapshot lock failed", "path", f.path, "err", err)
		return
	}
	in, err := os.Open(f.path)
	if err != nil {
		f.flk.Unlock()
		if !os.IsNotExist(err) {
			f.log.Errorw("cache snapshot open failed", "path", f.path, "err", err)
		}
		return
	}
	var entries []snapEntry
	decErr := gob.NewDecoder(in).Decode(&entries)
	in.Close()
	f.flk.Unlock()
	if decErr != nil {
		f.log.Errorw("cache snapshot corrupt, starting empty", "path", f.path, "err", decErr)
		return
	}

	now := f.clk.Now().UnixNano()
	for _, e := range entries {
		if e.Entry.ExpiresAt > now {
			f.ord.Add(e.Key, e.Entry)
		}
	}
	f.log.Infow("cache snapshot loaded", "path", f.path, "entries", f.ord.Len())
}
