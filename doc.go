// Package cqstream is a long-lived event ingestion client for CQHTTP/OneBot
// bot servers.
//
// A bot server publishes every event (messages, notices, friend and group
// requests, heartbeats) as a JSON post over a websocket. cqstream holds that
// connection open, reconnects when it drops, reassembles fragmented frames
// into whole posts and hands each post to a handler. When the handler answers
// a request post, the answer is merged into the raw post and sent back through
// the HTTP action API.
//
// # Architecture
//
//	bot server ──ws──▶ input/websocket ──▶ natsclient.Forwarder ──▶ NATS (optional)
//	                        │
//	                        ├──▶ handler.Mux ──▶ RequestPolicy / Echo
//	                        │
//	                        └──▶ api.Client ──http──▶ bot server actions
//
// # Packages
//
// Core:
//   - input/websocket: Connector, frame reassembly, reconnect supervision,
//     dispatch and the Listener lifecycle
//   - post: Decoding of raw posts and request responses
//   - api: HTTP action API client
//   - handler: Post routing and the built-in request policy
//
// Infrastructure:
//   - config: JSON/YAML configuration with environment overrides
//   - natsclient: NATS connection and raw post forwarding
//   - metric: Prometheus registry and the metrics/health HTTP server
//   - health: Health status and aggregation
//   - errors: Classified errors (transient, invalid, fatal)
//
// Utilities:
//   - pkg/retry: Backoff policies
//   - pkg/worker: Bounded worker pool used for dispatch
//   - pkg/tlsutil: Client TLS for wss and https
//
// # Binary
//
//	go build ./cmd/cqstream
//	./cqstream --config cqstream.yaml
//
// See cmd/cqstream for flags and config for the file format and environment
// variables.
package cqstream
