package sdk

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/mbeoliero/nexo-chat/pkg/errcode"
	"github.com/tidwall/gjson"
)

// ListChats returns the raw conversations of the current user
func (c *Client) ListChats(ctx context.Context) ([]json.RawMessage, error) {
	resp, err := c.get(ctx, "/chats", nil)
	if err != nil {
		return nil, err
	}
	return rawList(resp.Data()), nil
}

// CreatePrivateChat opens (or returns the existing) 1:1 chat with userId
func (c *Client) CreatePrivateChat(ctx context.Context, userId string) (json.RawMessage, error) {
	if userId == "" {
		return nil, errcode.ErrInvalidParam.WithMsg("user id is required")
	}
	resp, err := c.post(ctx, "/chats/private", &CreatePrivateChatRequest{UserId: userId})
	if err != nil {
		return nil, err
	}
	return rawObject(resp.Data())
}

// GetChat returns one raw conversation
func (c *Client) GetChat(ctx context.Context, chatId string) (json.RawMessage, error) {
	if chatId == "" {
		return nil, errcode.ErrInvalidParam.WithMsg("chat id is required")
	}
	resp, err := c.get(ctx, "/chats/"+url.PathEscape(chatId), nil)
	if err != nil {
		return nil, err
	}
	return rawObject(resp.Data())
}

func rawList(r gjson.Result) []json.RawMessage {
	if !r.IsArray() {
		return []json.RawMessage{}
	}
	items := r.Array()
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		out = append(out, json.RawMessage(item.Raw))
	}
	return out
}

func rawObject(r gjson.Result) (json.RawMessage, error) {
	if !r.IsObject() {
		return nil, errcode.ErrInvalidProtocol.WithMsg("response data is not an object")
	}
	return json.RawMessage(r.Raw), nil
}
