package post

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/c360/cqstream/errors"
)

// Response is what a handler returns for a post. A nil Response means the
// handler has nothing to send back.
type Response interface {
	// Fields returns the fields to overlay on the original post.
	Fields() map[string]any
}

// RequestResponse answers a request post with an approve or deny decision.
type RequestResponse interface {
	Response
	// RequestType is RequestFriend or RequestGroup.
	RequestType() string
	// IsEmpty reports whether there is no decision to forward.
	IsEmpty() bool
}

// FriendRequestResponse answers a friend request.
type FriendRequestResponse struct {
	Approve bool   `json:"approve"`
	Remark  string `json:"remark,omitempty"`
}

// ApproveFriend accepts a friend request, optionally setting a remark for the new friend.
func ApproveFriend(remark string) *FriendRequestResponse {
	return &FriendRequestResponse{Approve: true, Remark: remark}
}

// DenyFriend rejects a friend request.
func DenyFriend() *FriendRequestResponse {
	return &FriendRequestResponse{Approve: false}
}

// Fields implements Response.
func (r *FriendRequestResponse) Fields() map[string]any {
	if r == nil {
		return nil
	}
	fields := map[string]any{"approve": r.Approve}
	if r.Remark != "" {
		fields["remark"] = r.Remark
	}
	return fields
}

// RequestType implements RequestResponse.
func (r *FriendRequestResponse) RequestType() string { return RequestFriend }

// IsEmpty implements RequestResponse.
func (r *FriendRequestResponse) IsEmpty() bool { return r == nil }

// GroupRequestResponse answers a group add or invite request.
type GroupRequestResponse struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason,omitempty"`
}

// ApproveGroup accepts a group request.
func ApproveGroup() *GroupRequestResponse {
	return &GroupRequestResponse{Approve: true}
}

// DenyGroup rejects a group request with an optional reason shown to the requester.
func DenyGroup(reason string) *GroupRequestResponse {
	return &GroupRequestResponse{Approve: false, Reason: reason}
}

// Fields implements Response.
func (r *GroupRequestResponse) Fields() map[string]any {
	if r == nil {
		return nil
	}
	fields := map[string]any{"approve": r.Approve}
	if r.Reason != "" {
		fields["reason"] = r.Reason
	}
	return fields
}

// RequestType implements RequestResponse.
func (r *GroupRequestResponse) RequestType() string { return RequestGroup }

// IsEmpty implements RequestResponse.
func (r *GroupRequestResponse) IsEmpty() bool { return r == nil }

// Merge re-parses raw into a generic map and overlays the response fields on
// it. Response fields win on conflict. raw is not modified. Numbers are kept
// as json.Number so ids and flags survive unchanged.
func Merge(raw []byte, resp Response) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var merged map[string]any
	if err := dec.Decode(&merged); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"post", "Merge", "unmarshal original post")
	}
	if merged == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: post is not an object", errors.ErrParsingFailed),
			"post", "Merge", "unmarshal original post")
	}

	if resp != nil {
		maps.Copy(merged, resp.Fields())
	}
	return merged, nil
}
