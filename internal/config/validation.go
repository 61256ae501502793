package config

import (
	"fmt"
	"path/filepath"
	"time"

	"nixmate/internal/operation"
	"nixmate/pkg/logging"
)

// Validate checks the configuration and returns a ConfigurationErrorCollection
// when any value is unusable.
func (c Config) Validate() error {
	var errs ConfigurationErrorCollection

	if c.Cache.TTL <= 0 {
		errs.Add("cache.ttl", "must be positive", "use a duration such as 300s")
	}
	for kind, ttl := range c.Cache.KindTTL {
		k, err := operation.ParseKind(kind)
		if err != nil {
			errs.Add("cache.kindTTL."+kind, "unknown operation kind")
			continue
		}
		if !k.IsIdempotentRead() {
			errs.Add("cache.kindTTL."+kind, "operation kind is never cached", "only search, list_generations and dry_run are cacheable")
		}
		if ttl <= 0 {
			errs.Add("cache.kindTTL."+kind, "must be positive")
		}
	}

	if c.Executor.Workers < 0 {
		errs.Add("executor.workers", "must not be negative", "use 0 to size the pool from GOMAXPROCS")
	}
	for field, d := range map[string]time.Duration{
		"executor.readTimeout":    c.Executor.ReadTimeout,
		"executor.buildTimeout":   c.Executor.BuildTimeout,
		"executor.defaultTimeout": c.Executor.DefaultTimeout,
	} {
		if d <= 0 {
			errs.Add(field, "must be positive")
		}
	}
	for kind, d := range c.Executor.Timeouts {
		if _, err := operation.ParseKind(kind); err != nil {
			errs.Add("executor.timeouts."+kind, "unknown operation kind")
		} else if d <= 0 {
			errs.Add("executor.timeouts."+kind, "must be positive")
		}
	}

	for i, root := range c.Security.AllowedRoots {
		if !filepath.IsAbs(root) {
			errs.Add(fmt.Sprintf("security.allowedRoots[%d]", i), fmt.Sprintf("%q is not an absolute path", root))
		}
	}

	if c.NativeAPIPath != "" && !filepath.IsAbs(c.NativeAPIPath) {
		errs.Add("nativeAPIPath", "must be an absolute path")
	}

	switch logging.Format(c.Logging.Format) {
	case logging.FormatText, logging.FormatJSON:
	default:
		errs.Add("logging.format", fmt.Sprintf("unsupported format %q", c.Logging.Format), "use text or json")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// TTLFor returns the cache TTL for kind.
func (c CacheConfig) TTLFor(kind operation.Kind) time.Duration {
	if ttl, ok := c.KindTTL[string(kind)]; ok && ttl > 0 {
		return ttl
	}
	return c.TTL
}

// TimeoutFor returns the executor timeout for kind: reads get the short
// timeout, builds the long one.
func (c ExecutorConfig) TimeoutFor(kind operation.Kind) time.Duration {
	if d, ok := c.Timeouts[string(kind)]; ok && d > 0 {
		return d
	}
	switch {
	case kind.IsIdempotentRead():
		return c.ReadTimeout
	case kind.IsLongRunning():
		return c.BuildTimeout
	default:
		return c.DefaultTimeout
	}
}
