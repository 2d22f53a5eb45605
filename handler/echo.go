package handler

import (
	"context"
	"strings"

	"github.com/c360/cqstream/post"
)

// MessageSender sends replies through the action API
type MessageSender interface {
	SendPrivateMessage(ctx context.Context, userID int64, message string) (int64, error)
	SendGroupMessage(ctx context.Context, groupID int64, message string) (int64, error)
}

// Echo replies with the rest of any message that starts with prefix
func Echo(sender MessageSender, prefix string) MessageFunc {
	return func(ctx context.Context, m *post.Message) error {
		text := m.Text()
		if !strings.HasPrefix(text, prefix) {
			return nil
		}
		reply := strings.TrimSpace(strings.TrimPrefix(text, prefix))
		if reply == "" {
			return nil
		}

		var err error
		switch m.MessageType {
		case post.MessagePrivate:
			_, err = sender.SendPrivateMessage(ctx, m.UserID, reply)
		case post.MessageGroup:
			_, err = sender.SendGroupMessage(ctx, m.GroupID, reply)
		}
		return err
	}
}
