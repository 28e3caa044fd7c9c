package api

import (
	"context"
	"net/http"
	"net/url"
)

// MarkConversationRead marks every message in a conversation as read.
func (c *Client) MarkConversationRead(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodPost, []string{"messages", "conversations", conversationID, "mark-read"}, nil, nil, nil)
}

// UpdateMessageStatus moves a message to delivered or seen.
func (c *Client) UpdateMessageStatus(ctx context.Context, messageID, status string) error {
	q := url.Values{"status": []string{status}}
	return c.do(ctx, http.MethodPut, []string{"messages", "messages", messageID, "status"}, q, nil, nil)
}

// UnreadMessages returns the total unread message count across conversations.
func (c *Client) UnreadMessages(ctx context.Context) (int, error) {
	var out unreadResponse
	if err := c.do(ctx, http.MethodGet, []string{"messages", "conversations", "unread-count"}, nil, nil, &out); err != nil {
		return 0, err
	}
	return out.UnreadCount, nil
}
