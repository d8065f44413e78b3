package pager

import (
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config configures a Pager. It is embedded, YAML-tagged, inside
// kv.Config (SPEC_FULL.md §10.3) so callers load it from the same config
// file as the rest of the engine.
type Config struct {
	// PageSize is the desired logical/physical page size, in bytes. Must
	// be >= SmallestPhysicalBlock and a multiple of it (spec.md §6).
	PageSize int `yaml:"page_size"`
	// CacheBytes is the Object Cache's byte budget (spec.md §6).
	CacheBytes int64 `yaml:"cache_bytes"`
	// ReclaimRatePerSecond paces the remap-undo background task so it
	// yields bandwidth to foreground commits (SPEC_FULL.md §11).
	ReclaimRatePerSecond float64 `yaml:"reclaim_rate_per_second"`
	Logger               *zap.Logger
}

// DefaultConfig returns sane defaults for a fresh store.
func DefaultConfig() Config {
	return Config{
		PageSize:             SmallestPhysicalBlock,
		CacheBytes:           64 << 20,
		ReclaimRatePerSecond: 2000,
	}
}

func (c Config) reclaimLimiter() *rate.Limiter {
	r := c.ReclaimRatePerSecond
	if r <= 0 {
		r = 2000
	}
	return rate.NewLimiter(rate.Limit(r), int(r))
}
