// Package metric provides the Prometheus registry shared by cqstream
// components and the HTTP server that exposes it.
//
// Components create their collectors with the Namespace prefix and register
// them under a service name so they can be removed together on shutdown:
//
//	registry := metric.NewMetricsRegistry()
//	counter := prometheus.NewCounter(prometheus.CounterOpts{
//	    Namespace: metric.Namespace,
//	    Subsystem: "listener",
//	    Name:      "messages_received_total",
//	    Help:      "Complete messages read from the socket",
//	})
//	if err := registry.RegisterCounter("listener", "messages_received", counter); err != nil {
//	    return err
//	}
//
// Server exposes the registry at a configurable path and a /healthz endpoint
// on a chi router:
//
//	server := metric.NewServer(":9090", "/metrics", registry, listener.Health)
//	if err := server.Start(); err != nil {
//	    return err
//	}
//	defer server.Stop(context.Background())
//
// Registering the same service/metric pair twice returns an invalid-class
// error from the errors package rather than panicking.
package metric
