// Package natsclient connects to NATS and republishes raw posts on it.
//
// Client wraps a single nats.go connection. Reconnection after the initial
// Connect is left to nats.go; Client only tracks the resulting status and
// reports it through Health.
//
// Forwarder plugs into the listener as its raw observer. Every complete
// message read from the bot server is published unchanged, before it is
// decoded, on a subject derived from its post_type:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("cqstream"),
//	    natsclient.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
//	forwarder := natsclient.NewForwarder(client, "cqstream.posts")
//	// cqstream.posts.message, cqstream.posts.request, ...
//
// Payloads without a readable post_type go to <prefix>.unknown so downstream
// consumers still see malformed input.
//
// # Testing
//
// NewTestClient starts a NATS server with testcontainers. Tests using it are
// behind the integration build tag:
//
//	go test -tags integration ./natsclient/...
package natsclient
