package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Lookup results recorded by ReadThrough.
const (
	resultHit      = "hit"
	resultMiss     = "miss"
	resultError    = "error"
	resultSetError = "set_error"
)

// lookupsTotal counts cache-aside lookups by key space and result.
var lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cache_lookups_total",
	Help: "Total number of cache-aside lookups by result",
}, []string{"space", "result"})
