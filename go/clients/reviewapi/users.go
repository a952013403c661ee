package reviewapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mcdev12/teamsync/go/internal/models"
	"github.com/mcdev12/teamsync/go/internal/review/events"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Username string `json:"username" validate:"required,max=50"`
}

// AuthResult is a signed-in account and its bearer token.
type AuthResult struct {
	Token string
	User  models.User
}

type authResponse struct {
	Token    string        `json:"token"`
	UserID   events.UserID `json:"userId"`
	Username string        `json:"username"`
	Email    string        `json:"email"`
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	if err := c.check(req); err != nil {
		return nil, err
	}
	return c.authenticate(ctx, LoginEndpoint, req)
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	if err := c.check(req); err != nil {
		return nil, err
	}
	return c.authenticate(ctx, RegisterEndpoint, req)
}

func (c *Client) authenticate(ctx context.Context, endpoint string, req any) (*AuthResult, error) {
	var resp authResponse
	if err := c.DoJSON(ctx, http.MethodPost, endpoint, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", classify(err, nil))
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("failed to authenticate: %w: response carried no token", ErrUnauthorized)
	}

	return &AuthResult{
		Token: resp.Token,
		User: models.User{
			ID:       string(resp.UserID),
			Username: resp.Username,
			Email:    resp.Email,
		},
	}, nil
}
