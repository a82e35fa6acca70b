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
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kwmetrics/kwmetricsd/metric"
)

const redisProbeTimeout = 3 * time.Second

// Redis stores records as JSON strings with an absolute expiry.
type Redis struct {
	client *redis.Client
	log    *zap.SugaredLogger
}

// NewRedis dials the server and issues a liveness probe. An error here
// makes the caller fall back to the file backend.
func NewRedis(ctx context.Context, addr string, db int, password string, log *zap.SugaredLogger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       db,
		Password: password,
	})
	probeCtx, cancel := context.WithTimeout(ctx, redisProbeTimeout)
	defer cancel()
	if err := client.Ping(probeCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &Redis{client: client, log: log}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (metric.Record, bool) {
	raw, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			r.log.Errorw("redis get failed", "key", key, "err", err)
		}
		return metric.Record{}, false
	}
	var rec metric.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		r.log.Errorw("redis value corrupt", "key", key, "err", err)
		return metric.Record{}, false
	}
	return rec, true
}

func (r *Redis) Set(ctx context.Context, key string, rec metric.Record, ttl time.Duration) bool {
	raw, err := json.Marshal(rec)
	if err != nil {
		r.log.Errorw("marshal cache record failed", "key", key, "err", err)
		return false
	}
	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		r.log.Errorw("redis set failed", "key", key, "err", err)
		return false
	}
	return true
}

func (r *Redis) Exists(ctx context.Context, key string) bool {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		r.log.Errorw("redis exists failed", "key", key, "err", err)
		return false
	}
	return n > 0
}

func (r *Redis) Delete(ctx context.Context, key string) bool {
	n, err := r.client.Del(ctx, key).Result()
	if err != nil {
		r.log.Errorw("redis delete failed", "key", key, "err", err)
		return false
	}
	return n > 0
}

// Close releases the client connection pool.
func (r *Redis) Close() error { return r.client.Close() }
