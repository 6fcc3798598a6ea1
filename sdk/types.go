package sdk

import "encoding/json"

// LoginRequest represents the login payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued token. Under the cookie strategy Token is
// empty and the credential lives in the cookie jar.
type LoginResponse struct {
	Token string          `json:"auth_token,omitempty"`
	Raw   json.RawMessage `json:"-"`
}

// RegisterRequest represents the registration payload
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// MessageResponse is returned verbatim by endpoints that only report a message
type MessageResponse struct {
	Message string          `json:"message"`
	Raw     json.RawMessage `json:"-"`
}

// ForgotPasswordRequest represents the password reset request payload
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest represents the password reset payload
type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// CreatePrivateChatRequest represents the private chat creation payload
type CreatePrivateChatRequest struct {
	UserId string `json:"user_id"`
}

// UploadResult is the stored file reference
type UploadResult struct {
	URL string          `json:"url"`
	Raw json.RawMessage `json:"-"`
}
