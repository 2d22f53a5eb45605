package post

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/c360/cqstream/errors"
)

// Post categories, carried in the post_type field
const (
	TypeMessage   = "message"
	TypeNotice    = "notice"
	TypeRequest   = "request"
	TypeMetaEvent = "meta_event"
)

// Message types
const (
	MessagePrivate = "private"
	MessageGroup   = "group"
	MessageDiscuss = "discuss"
)

// Request types and group request sub types
const (
	RequestFriend = "friend"
	RequestGroup  = "group"

	GroupRequestAdd    = "add"
	GroupRequestInvite = "invite"
)

// Post is one decoded event envelope.
type Post interface {
	// PostType returns the post_type discriminant.
	PostType() string
	// Raw returns the bytes the post was decoded from. Callers must not modify them.
	Raw() []byte
	// Envelope returns the fields common to every post.
	Envelope() *Base
}

// Base holds the fields shared by every post category.
type Base struct {
	Type   string `json:"post_type"`
	Time   int64  `json:"time"`
	SelfID int64  `json:"self_id"`
	UserID int64  `json:"user_id"`

	// Fields holds every top-level field as received, including ones
	// not modelled by the concrete type.
	Fields map[string]json.RawMessage `json:"-"`

	raw []byte
}

// PostType implements Post.
func (b *Base) PostType() string { return b.Type }

// Raw implements Post.
func (b *Base) Raw() []byte { return b.raw }

// Envelope implements Post.
func (b *Base) Envelope() *Base { return b }

// Timestamp converts Time to a time.Time.
func (b *Base) Timestamp() time.Time { return time.Unix(b.Time, 0) }

// Field decodes a top-level field into v. It reports false when the field is
// absent or does not decode.
func (b *Base) Field(name string, v any) bool {
	raw, ok := b.Fields[name]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

// Sender describes the author of a message.
type Sender struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Card     string `json:"card,omitempty"`
	Sex      string `json:"sex,omitempty"`
	Age      int32  `json:"age,omitempty"`
	Area     string `json:"area,omitempty"`
	Level    string `json:"level,omitempty"`
	Role     string `json:"role,omitempty"`
	Title    string `json:"title,omitempty"`
}

// Anonymous identifies an anonymous group sender.
type Anonymous struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Flag string `json:"flag"`
}

// Message is a private, group or discuss chat message.
type Message struct {
	Base
	MessageType string     `json:"message_type"`
	SubType     string     `json:"sub_type"`
	MessageID   int64      `json:"message_id"`
	GroupID     int64      `json:"group_id"`
	DiscussID   int64      `json:"discuss_id"`
	RawMessage  string     `json:"raw_message"`
	Font        int32      `json:"font"`
	Sender      *Sender    `json:"sender"`
	Anonymous   *Anonymous `json:"anonymous"`

	// Body is the message field, either CQ code text or a segment array.
	Body json.RawMessage `json:"message"`

	contentOnce sync.Once
	content     Segments
	contentErr  error
}

// Content parses Body on first use and returns the cached segments.
func (m *Message) Content() (Segments, error) {
	m.contentOnce.Do(func() {
		m.content, m.contentErr = ParseSegments(m.Body)
	})
	return m.content, m.contentErr
}

// Text returns the plain text of the message, ignoring non-text segments.
func (m *Message) Text() string {
	segs, err := m.Content()
	if err != nil {
		return ""
	}
	return segs.Text()
}

// IsAnonymous reports whether the message was sent anonymously in a group.
func (m *Message) IsAnonymous() bool {
	return m.MessageType == MessageGroup && m.Anonymous != nil
}

// Notice is a group or friend notification.
type Notice struct {
	Base
	NoticeType string `json:"notice_type"`
	SubType    string `json:"sub_type"`
	GroupID    int64  `json:"group_id"`
	OperatorID int64  `json:"operator_id"`
	Duration   int64  `json:"duration"`
}

// Request is a friend or group add request. Handlers answer it with a
// FriendRequestResponse or GroupRequestResponse.
type Request struct {
	Base
	RequestType string `json:"request_type"`
	Flag        string `json:"flag"`
	SubType     string `json:"sub_type"`
	GroupID     int64  `json:"group_id"`

	// RawComment may be plain text or a segment array.
	RawComment json.RawMessage `json:"comment"`

	commentOnce sync.Once
	comment     string
}

// IsFriend reports whether this is a friend request.
func (r *Request) IsFriend() bool { return r.RequestType == RequestFriend }

// IsGroup reports whether this is a group add or invite request.
func (r *Request) IsGroup() bool { return r.RequestType == RequestGroup }

// Comment returns the requester's comment as plain text.
func (r *Request) Comment() string {
	r.commentOnce.Do(func() {
		if len(r.RawComment) == 0 {
			return
		}
		segs, err := ParseSegments(r.RawComment)
		if err != nil {
			return
		}
		r.comment = segs.Text()
	})
	return r.comment
}

// MetaEvent is a lifecycle or heartbeat event from the bot server itself.
type MetaEvent struct {
	Base
	MetaEventType string          `json:"meta_event_type"`
	SubType       string          `json:"sub_type"`
	Interval      int64           `json:"interval"`
	Status        json.RawMessage `json:"status"`
}

// Unknown is a post whose post_type is not recognised.
type Unknown struct {
	Base
}

// Decode parses raw into the concrete post type named by its post_type field.
// The returned post keeps its own copy of raw.
func Decode(raw []byte) (Post, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"post", "Decode", "unmarshal envelope")
	}

	var postType string
	if rawType, ok := fields["post_type"]; ok {
		_ = json.Unmarshal(rawType, &postType)
	}
	if postType == "" {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: missing post_type", errors.ErrParsingFailed),
			"post", "Decode", "read discriminant")
	}

	var p Post
	switch postType {
	case TypeMessage:
		p = &Message{}
	case TypeNotice:
		p = &Notice{}
	case TypeRequest:
		p = &Request{}
	case TypeMetaEvent:
		p = &MetaEvent{}
	default:
		p = &Unknown{}
	}

	if err := json.Unmarshal(raw, p); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"post", "Decode", fmt.Sprintf("unmarshal %s post", postType))
	}

	base := p.Envelope()
	base.raw = append([]byte(nil), raw...)
	base.Fields = fields
	return p, nil
}

// PeekType returns the post_type of raw without decoding the rest of the
// post, or "" when it cannot be read.
func PeekType(raw []byte) string {
	var head struct {
		Type string `json:"post_type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return ""
	}
	return head.Type
}
