// Package handler provides application handlers for the listener.
//
// Mux routes each decoded post to the handlers registered for its category:
//
//	mux := handler.NewMux(logger).
//	    OnMessage(handler.Echo(apiClient, "/echo")).
//	    OnRequest(policy.HandleRequest)
//
// RequestPolicy answers friend and group add requests with configured
// approve, deny or ignore actions. Its answer is merged into the original
// request by the listener and sent to the action API.
package handler
