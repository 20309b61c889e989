// Package metric provides Prometheus metrics infrastructure for pocketClaw.
//
// MetricsRegistry wraps a private Prometheus registry with a set of core
// client metrics (connection state, frame counts, RPC latency, streaming
// turn outcomes) plus namespaced registration for component-scoped
// collectors. Components follow the nil-registry = nil-feature pattern:
// when no registry is supplied, they skip metrics entirely instead of
// branching at every call site.
//
// Server exposes the registry on an HTTP endpoint for scraping:
//
//	registry := metric.NewMetricsRegistry()
//	srv := metric.NewServer(9090, "/metrics", registry)
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Stop(5 * time.Second)
package metric
