package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360/cqstream/errors"
	"github.com/c360/cqstream/post"
)

// Action is what a RequestPolicy does with a request
type Action string

const (
	ActionApprove Action = "approve"
	ActionDeny    Action = "deny"
	ActionIgnore  Action = "ignore"
)

func (a Action) valid() bool {
	switch a {
	case ActionApprove, ActionDeny, ActionIgnore, "":
		return true
	}
	return false
}

// RequestPolicy answers friend and group add requests with fixed actions.
// An empty action means ignore.
type RequestPolicy struct {
	Friend       Action `json:"friend" yaml:"friend"`
	FriendRemark string `json:"friend_remark" yaml:"friend_remark"`

	// GroupAdd applies to join requests, GroupInvite to invitations of the bot
	GroupAdd    Action `json:"group_add" yaml:"group_add"`
	GroupInvite Action `json:"group_invite" yaml:"group_invite"`
	GroupReason string `json:"group_reason" yaml:"group_reason"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

// Validate checks that every action is known
func (p RequestPolicy) Validate() error {
	for field, a := range map[string]Action{
		"friend":       p.Friend,
		"group_add":    p.GroupAdd,
		"group_invite": p.GroupInvite,
	} {
		if !a.valid() {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %s action %q", errors.ErrInvalidConfig, field, a),
				"RequestPolicy", "Validate", "check request actions")
		}
	}
	return nil
}

// HandleRequest is a RequestFunc
func (p RequestPolicy) HandleRequest(_ context.Context, r *post.Request) (post.RequestResponse, error) {
	var resp post.RequestResponse
	action := ActionIgnore

	switch {
	case r.IsFriend():
		action = p.Friend
		switch action {
		case ActionApprove:
			resp = post.ApproveFriend(p.FriendRemark)
		case ActionDeny:
			resp = post.DenyFriend()
		}
	case r.IsGroup():
		action = p.GroupAdd
		if r.SubType == post.GroupRequestInvite {
			action = p.GroupInvite
		}
		switch action {
		case ActionApprove:
			resp = post.ApproveGroup()
		case ActionDeny:
			resp = post.DenyGroup(p.GroupReason)
		}
	}

	if p.Logger != nil {
		p.Logger.Info("Request policy applied",
			"request_type", r.RequestType, "sub_type", r.SubType, "user_id", r.UserID, "action", string(orIgnore(action)))
	}
	return resp, nil
}

func orIgnore(a Action) Action {
	if a == "" {
		return ActionIgnore
	}
	return a
}
