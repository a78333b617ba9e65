/*
Package monitoring provides Prometheus metrics for the studio daemon.

# Overview

Metrics cover the control API, calls to the workspace backend, the content
cache, and build runs. A collector is bound to an explicit registerer so
tests and embedded uses can keep their own registry.

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(monitoring.Handler(reg)))

	timer := monitoring.NewTimer(metrics, "read_file")
	// ... call the backend ...
	timer.Stop("200")

A nil *Metrics is accepted everywhere and records nothing.
*/
package monitoring
