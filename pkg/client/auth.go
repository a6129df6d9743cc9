package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

// PasswordCredentials is the password block of a login request
type PasswordCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginRequest represents the request body for an authentication request
type LoginRequest struct {
	Password PasswordCredentials `json:"password"`
}

// TokenInfo describes the session token issued by the service
type TokenInfo struct {
	Token    string `json:"token"`
	Timeout  int    `json:"timeout,omitempty"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
}

// AuthResponse represents the response of the authentication endpoint
type AuthResponse struct {
	Token TokenInfo `json:"token"`
}

// Authenticate exchanges the credentials for a session token and keeps it
// for subsequent calls.
func (c *APIClient) Authenticate(ctx context.Context, username, password string) (*AuthResponse, error) {
	if username == "" {
		return nil, fmt.Errorf("username cannot be empty")
	}
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}

	reqBody := LoginRequest{
		Password: PasswordCredentials{
			Username: username,
			Password: password,
		},
	}

	var authResp AuthResponse
	if err := c.doRequest(ctx, http.MethodPost, APIPathAuth, false, reqBody, &authResp); err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if authResp.Token.Token == "" {
		return nil, fmt.Errorf("authentication failed: %w", ErrEmptyToken)
	}

	c.token = authResp.Token.Token

	c.logger.WithFields(logrus.Fields{
		"username": username,
		"role":     authResp.Token.Role,
	}).Debug("Authenticated with scanning service")

	return &authResp, nil
}

// Deauthenticate ends the session on the service. The local token is dropped
// even when the service rejects the call.
func (c *APIClient) Deauthenticate(ctx context.Context) error {
	if c.token == "" {
		return ErrNotAuthenticated
	}
	defer func() { c.token = "" }()

	if err := c.doRequest(ctx, http.MethodDelete, APIPathAuth, true, nil, nil); err != nil {
		return fmt.Errorf("deauthentication failed: %w", err)
	}
	return nil
}

// CheckAvailable probes the authentication endpoint. A 405 "Method not
// allowed" answer means the service is reachable but not ready and yields
// false without an error; any other failure is returned.
func (c *APIClient) CheckAvailable(ctx context.Context) (bool, error) {
	err := c.doRequest(ctx, http.MethodGet, APIPathAuth, false, nil, nil)
	if err == nil {
		return true, nil
	}
	if IsNotReady(err) {
		return false, nil
	}
	return false, err
}
