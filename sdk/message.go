package sdk

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/mbeoliero/nexo-chat/pkg/errcode"
)

// ListMessages returns the raw message history of a chat
func (c *Client) ListMessages(ctx context.Context, chatId string) ([]json.RawMessage, error) {
	if chatId == "" {
		return nil, errcode.ErrInvalidParam.WithMsg("chat id is required")
	}
	resp, err := c.get(ctx, "/messages/"+url.PathEscape(chatId), nil)
	if err != nil {
		return nil, err
	}
	return rawList(resp.Data()), nil
}
