// Package api is a client for the bot server's HTTP action API.
//
// Every action is a POST of a JSON object to <base>/<action>; the server
// answers with an envelope carrying status, retcode and data. Retcode 0 (ok)
// and 1 (async) are both treated as success.
//
// The HTTP API authenticates with an "Authorization: Token <t>" header,
// unlike the event WebSocket which takes the token as a query parameter.
//
// HandleFriendRequest and HandleGroupRequest take a request post merged with
// a handler's response and issue the matching set_*_add_request action, so a
// *Client can be passed straight to the listener as its request API.
// Calls are never retried; failures are returned to the caller.
package api
