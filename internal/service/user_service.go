package service

import (
	"context"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/nexo-chat/internal/entity"
	"github.com/mbeoliero/nexo-chat/pkg/errcode"
	"github.com/mbeoliero/nexo-chat/sdk"
)

// UserService handles user lookups
type UserService struct {
	api UserAPI
}

// NewUserService creates a new UserService
func NewUserService(api UserAPI) *UserService {
	return &UserService{
		api: api,
	}
}

// SearchUsers finds users by name or email. Short terms are rejected before
// any request; a failed request yields an empty result along with the error.
func (s *UserService) SearchUsers(ctx context.Context, term string) ([]*entity.User, error) {
	if err := sdk.ValidateSearchTerm(term); err != nil {
		return []*entity.User{}, err
	}

	users, err := s.api.SearchUsers(ctx, term)
	if err != nil {
		log.CtxError(ctx, "search users failed: term=%s, error=%v", term, err)
		return []*entity.User{}, err
	}
	return users, nil
}

// GetUserInfo gets user info by Id
func (s *UserService) GetUserInfo(ctx context.Context, userId string) (*entity.User, error) {
	if userId == "" {
		return nil, errcode.ErrInvalidParam.WithMsg("user id is required")
	}
	user, err := s.api.GetUser(ctx, userId)
	if err != nil {
		log.CtxDebug(ctx, "get user failed: user_id=%s, error=%v", userId, err)
		return nil, err
	}
	return user, nil
}
