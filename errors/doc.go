// Package errors provides error classification and wrapping helpers shared by
// every cqstream package.
//
// Errors fall into three classes:
//
//   - Transient: network blips, dropped connections, rate limits. Safe to retry.
//   - Invalid: malformed posts, bad endpoints, bad configuration values.
//   - Fatal: conditions that must stop the component (exhausted retry budget).
//
// Wrapping follows the "component.Method: action failed: cause" pattern:
//
//	return errors.WrapTransient(err, "DialConnector", "Connect", "websocket handshake")
//
// The wrapped cause stays reachable through errors.Is / errors.As, so a
// cancelled connect can be detected with IsCancelled regardless of how many
// layers wrapped it.
package errors
