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

// kwmetricsd is the keyword-metrics batch API daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/kwmetrics/kwmetricsd/api"
	"github.com/kwmetrics/kwmetricsd/cache"
	"github.com/kwmetrics/kwmetricsd/clock"
	"github.com/kwmetrics/kwmetricsd/config"
	"github.com/kwmetrics/kwmetricsd/coordinator"
	"github.com/kwmetrics/kwmetricsd/logging"
	"github.com/kwmetrics/kwmetricsd/queue"
	"github.com/kwmetrics/kwmetricsd/telemetry"
	"github.com/kwmetrics/kwmetricsd/upstream/gads"
	"github.com/kwmetrics/kwmetricsd/upstream/gtrends"
)

var (
	hostFlag = &cli.StringFlag{
		Name:    "host",
		Usage:   "HTTP listening interface",
		EnvVars: []string{"API_HOST"},
	}
	portFlag = &cli.IntFlag{
		Name:    "port",
		Usage:   "HTTP listening port",
		EnvVars: []string{"API_PORT"},
	}
	logDirFlag = &cli.StringFlag{
		Name:    "log.dir",
		Usage:   "Directory for log output",
		EnvVars: []string{"LOG_DIR"},
	}
	logLevelFlag = &cli.StringFlag{
		Name:    "log.level",
		Usage:   "Log level (debug, info, warn, error)",
		EnvVars: []string{"LOG_LEVEL"},
	}
	cacheTTLFlag = &cli.IntFlag{
		Name:    "cache.ttl",
		Usage:   "Cache entry lifetime in seconds",
		EnvVars: []string{"CACHE_TTL"},
	}
	cacheEntriesFlag = &cli.IntFlag{
		Name:    "cache.maxentries",
		Usage:   "Capacity of the on-disk fallback cache",
		EnvVars: []string{"CACHE_MAX_ENTRIES"},
	}
	redisHostFlag = &cli.StringFlag{
		Name:    "redis.host",
		Usage:   "Redis server host",
		EnvVars: []string{"REDIS_HOST"},
	}
	redisPortFlag = &cli.IntFlag{
		Name:    "redis.port",
		Usage:   "Redis server port",
		EnvVars: []string{"REDIS_PORT"},
	}
)

func main() {
	app := &cli.App{
		Name:  "kwmetricsd",
		Usage: "keyword metrics batch API daemon",
		Flags: []cli.Flag{
			hostFlag, portFlag, logDirFlag, logLevelFlag,
			cacheTTLFlag, cacheEntriesFlag, redisHostFlag, redisPortFlag,
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	// Local .env files are a convenience for development; absence is fine.
	godotenv.Load()

	cfg := config.FromEnv()
	applyFlags(c, &cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logging.New(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	tel := telemetry.New(registry)
	clk := clock.System{}

	log.Infow("starting keyword metrics batch API", "host", cfg.APIHost, "port", cfg.APIPort)

	kwcache := cache.New(c.Context, cfg, clk, log.Named("cache"), tel)
	ads := gads.New(cfg.Ads, clk, log.Named("ads"), tel)
	trends := gtrends.New(cfg.TrendsProgressFile, clk, log.Named("trends"), tel)
	jobs := queue.New(queue.DefaultMaxConcurrent, queue.DefaultBatchDelay, clk, log.Named("queue"), tel)
	coord := coordinator.New(kwcache, ads, trends, jobs, clk, log.Named("coordinator"), tel)

	srv := api.NewServer(cfg, coord, jobs, registry, clk, log.Named("access"), tel)
	if err := srv.Start(); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	got := <-sig
	log.Infow("shutting down", "signal", got.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		log.Warnw("shutdown incomplete", "err", err)
	}
	log.Infow("keyword metrics batch API stopped")
	return nil
}

func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet(hostFlag.Name) {
		cfg.APIHost = c.String(hostFlag.Name)
	}
	if c.IsSet(portFlag.Name) {
		cfg.APIPort = c.Int(portFlag.Name)
	}
	if c.IsSet(logDirFlag.Name) {
		cfg.LogDir = c.String(logDirFlag.Name)
	}
	if c.IsSet(logLevelFlag.Name) {
		cfg.LogLevel = c.String(logLevelFlag.Name)
	}
	if c.IsSet(cacheTTLFlag.Name) {
		cfg.CacheTTL = time.Duration(c.Int(cacheTTLFlag.Name)) * time.Second
	}
	if c.IsSet(cacheEntriesFlag.Name) {
		cfg.CacheMaxEntries = c.Int(cacheEntriesFlag.Name)
	}
	if c.IsSet(redisHostFlag.Name) {
		cfg.RedisHost = c.String(redisHostFlag.Name)
	}
	if c.IsSet(redisPortFlag.Name) {
		cfg.RedisPort = c.Int(redisPortFlag.Name)
	}
}
