package sdk

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
)

// Login authenticates with email and password. Input is validated before
// any network call. The token is returned, not stored.
func (c *Client) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	if req == nil {
		return nil, errcode.ErrInvalidParam
	}
	if err := ValidateEmail(req.Email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, "/auth/login", req)
	if err != nil {
		return nil, err
	}

	res := resp.Result()
	token := res.Get("body.auth_token").String()
	if token == "" {
		token = res.Get("auth_token").String()
	}
	return &LoginResponse{Token: token, Raw: resp.Body}, nil
}

// Register forwards the registration and returns the server response verbatim
func (c *Client) Register(ctx context.Context, req *RegisterRequest) (*MessageResponse, error) {
	if req == nil {
		return nil, errcode.ErrInvalidParam
	}
	if err := ValidateName(req.Name); err != nil {
		return nil, err
	}
	if err := ValidateEmail(req.Email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, "/auth/register", req)
	if err != nil {
		return nil, err
	}
	return messageResponse(resp), nil
}

// Verify returns the canonical user bound to the current credential
func (c *Client) Verify(ctx context.Context) (*entity.User, error) {
	resp, err := c.get(ctx, "/auth/verify", nil)
	if err != nil {
		return nil, err
	}

	data := resp.Data()
	raw := data.Get("user")
	if !raw.Exists() {
		raw = data
	}
	user := entity.UserFromJSON(json.RawMessage(raw.Raw))
	if user == nil {
		return nil, errcode.ErrUnauthorized.WithMsg("verify response has no user")
	}
	return user, nil
}

// ForgotPassword requests a password reset mail
func (c *Client) ForgotPassword(ctx context.Context, email string) (*MessageResponse, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	resp, err := c.post(ctx, "/auth/forgot-password", &ForgotPasswordRequest{Email: email})
	if err != nil {
		return nil, err
	}
	return messageResponse(resp), nil
}

// ResetPassword sets a new password using a reset token
func (c *Client) ResetPassword(ctx context.Context, token, password string) (*MessageResponse, error) {
	if token == "" {
		return nil, errcode.ErrInvalidParam.WithMsg("reset token is required")
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	resp, err := c.post(ctx, "/auth/reset-password", &ResetPasswordRequest{Token: token, Password: password})
	if err != nil {
		return nil, err
	}
	return messageResponse(resp), nil
}

// ValidateResetToken checks a reset token; a non-2xx answer means invalid
func (c *Client) ValidateResetToken(ctx context.Context, token string) (*MessageResponse, error) {
	if token == "" {
		return nil, errcode.ErrInvalidParam.WithMsg("reset token is required")
	}
	resp, err := c.get(ctx, "/auth/reset-password/validate/"+url.PathEscape(token), nil)
	if err != nil {
		return nil, err
	}
	return messageResponse(resp), nil
}

func messageResponse(resp *Response) *MessageResponse {
	msg := resp.Message()
	if !resp.IsJSON {
		msg = resp.Text()
	}
	return &MessageResponse{Message: msg, Raw: resp.Body}
}
