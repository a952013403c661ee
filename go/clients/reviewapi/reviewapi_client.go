package reviewapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/mcdev12/teamsync/go/clients"
)

var (
	ErrSessionNotFound = errors.New("review session not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidRequest  = errors.New("invalid request")
)

// Client talks to the Team Sync REST backend.
type Client struct {
	*clients.BaseClient
	validate *validator.Validate
}

// NewClient creates a client for baseURL. Requests carry the bearer token from
// tokens when it has one.
func NewClient(baseURL string, tokens clients.TokenSource) *Client {
	client := &Client{
		BaseClient: clients.NewBaseClient(baseURL),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}

	client.SetHeader("Accept", "application/json")
	client.SetTokenSource(tokens)

	return client
}

func (c *Client) check(req any) error {
	if err := c.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// classify maps backend status codes onto the package errors. The *clients.APIError
// stays reachable through errors.As.
func classify(err error, notFound error) error {
	var apiErr *clients.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	case http.StatusNotFound:
		if notFound != nil {
			return fmt.Errorf("%w: %w", notFound, err)
		}
	}
	return err
}
