package server

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics tracks operational counters across the server.
var metrics struct {
	UpscaleRequests atomic.Int64
	UpscaleErrors   atomic.Int64
	ImageRequests   atomic.Int64
}

// GetMetrics returns a snapshot of all counters including cache stats.
func GetMetrics(cacheStats func() (hits, misses int64)) map[string]int64 {
	var hits, misses int64
	if cacheStats != nil {
		hits, misses = cacheStats()
	}
	return map[string]int64{
		"upscale_requests": metrics.UpscaleRequests.Load(),
		"upscale_errors":   metrics.UpscaleErrors.Load(),
		"image_requests":   metrics.ImageRequests.Load(),
		"cache_hits":       hits,
		"cache_misses":     misses,
	}
}

// FormatMetrics renders counters as a simple text format for the HTTP
// endpoint, one "name value" pair per line.
func FormatMetrics(cacheStats func() (hits, misses int64)) string {
	snapshot := GetMetrics(cacheStats)
	keys := []string{"upscale_requests", "upscale_errors", "image_requests", "cache_hits", "cache_misses"}

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s %d\n", k, snapshot[k])
	}
	return b.String()
}
