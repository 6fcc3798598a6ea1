package sdk

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
)

// SearchUsers searches users by name or email; the term needs at least 3 characters
func (c *Client) SearchUsers(ctx context.Context, term string) ([]*entity.User, error) {
	if err := ValidateSearchTerm(term); err != nil {
		return nil, err
	}
	resp, err := c.get(ctx, "/users/search", map[string]string{"search": strings.TrimSpace(term)})
	if err != nil {
		return nil, err
	}

	raws := rawList(resp.Data())
	users := make([]*entity.User, 0, len(raws))
	for _, raw := range raws {
		if u := entity.UserFromJSON(raw); u != nil {
			users = append(users, u)
		}
	}
	return users, nil
}

// GetUser returns one user by id
func (c *Client) GetUser(ctx context.Context, userId string) (*entity.User, error) {
	if userId == "" {
		return nil, errcode.ErrInvalidParam.WithMsg("user id is required")
	}
	resp, err := c.get(ctx, "/users/"+url.PathEscape(userId), nil)
	if err != nil {
		return nil, err
	}
	data := resp.Data()
	if u := data.Get("user"); u.IsObject() {
		data = u
	}
	user := entity.UserFromJSON(json.RawMessage(data.Raw))
	if user == nil {
		return nil, errcode.ErrInvalidProtocol.WithMsg("response has no user")
	}
	return user, nil
}
