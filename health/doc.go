// Package health reports the health of the listener and its outbound
// dependencies.
//
// A Status is one of three states: healthy, degraded or unhealthy. Components
// produce a Probe describing what they currently observe and FromProbe turns
// it into a Status, scrubbing URLs, addresses and credentials out of the
// last error first.
//
// Monitor collects component statuses for a process-wide view:
//
//	monitor := health.NewMonitor()
//	monitor.Register("listener", listener.Health)
//	monitor.Register("nats", forwarder.Health)
//
//	status := monitor.AggregateHealth("cqstream")
//
// Aggregation is pessimistic: any unhealthy component makes the aggregate
// unhealthy, otherwise any degraded component makes it degraded.
package health
