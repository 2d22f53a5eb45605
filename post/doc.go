// Package post models the events pushed by a CQHTTP/OneBot bot server.
//
// Every event is a JSON object whose post_type field selects the category:
// message, notice, request or meta_event. Decode returns the matching
// concrete type (*Message, *Notice, *Request, *MetaEvent) or *Unknown for
// categories it does not model. All of them embed Base, which keeps the raw
// bytes and every top-level field as received.
//
// Derived values such as Message.Content and Request.Comment are computed on
// first access and cached, so a post may be shared between goroutines.
//
// Request posts are answered with a FriendRequestResponse or
// GroupRequestResponse. Merge overlays such a response on the original post
// to build the payload of the outbound approve or deny action.
package post
