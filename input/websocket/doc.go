// Package websocket is the event-ingestion core: it keeps a WebSocket
// connection to a CQHTTP/OneBot event endpoint and fans every event out to
// application handlers.
//
// # Overview
//
// A Listener owns one read loop per StartListening call:
//
//	┌───────────┐  Conn   ┌────────────┐ chunks ┌─────────────┐ msg ┌────────────┐
//	│ Connector ├────────►│ supervisor ├───────►│ Reassembler ├────►│ Dispatcher │
//	└───────────┘         └─────┬──────┘        └─────────────┘     └─────┬──────┘
//	      ▲     reconnect       │                                         │
//	      └─────────────────────┘              RawObserver, Handler, RequestAPI
//
// The supervisor reads chunks from the current connection, feeds them to the
// Reassembler and hands each complete message to the Dispatcher without
// waiting. When a read fails the partial message is discarded; if the
// connection is no longer healthy it is replaced through the Connector
// according to the retry policy.
//
// # Dispatch
//
// Each message is processed in its own task:
//
//  1. RawObserver.ObserveRaw sees the raw bytes, even empty or malformed ones
//  2. empty messages stop here
//  3. post.Decode turns the bytes into a post
//  4. Handler.HandlePost handles it; a non-empty friend or group request
//     response is merged into the original post and sent to RequestAPI
//
// Errors and panics are logged with the message content and counted. They
// never reach the read loop. Set Config.MaxConcurrentDispatch to bound the
// number of concurrent tasks; excess messages are then dropped.
//
// # Usage
//
//	l, err := websocket.New(cfg,
//	    websocket.WithHandler(mux),
//	    websocket.WithRequestAPI(apiClient),
//	    websocket.WithMetrics(registry),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := l.StartListening(ctx); err != nil {
//	    return err
//	}
//	<-ctx.Done()
//	return l.Wait(context.Background())
//
// There is no Stop method: cancelling the StartListening context closes the
// connection and ends the loop. A stopped listener may be started again.
//
// # Authentication
//
// The access token is passed as the access_token query parameter. Endpoint.String
// redacts it, and only the redacted form is logged.
package websocket
