// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package hub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// User is the account behind a token.
type User struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Fullname string `json:"fullname,omitempty"`
	Orgs     []struct {
		Name string `json:"name"`
	} `json:"orgs,omitempty"`
}

// Whoami returns the account the client's token belongs to.
func (c *Client) Whoami(ctx context.Context) (User, error) {
	if !c.HasToken() {
		return User{}, fmt.Errorf("whoami: %w: no token configured", ErrUnauthorized)
	}
	var u User
	if err := c.doJSON(ctx, http.MethodGet, c.apiURL("api", "whoami-v2"), nil, &u); err != nil {
		return User{}, fmt.Errorf("whoami: %w", err)
	}
	if u.Name == "" {
		return User{}, errors.New("whoami: hub returned an account without a name")
	}
	return u, nil
}

// AuthCheck verifies that the client can read repoID. It returns an error
// wrapping ErrGatedRepo when access has not been granted and ErrRepoNotFound
// when the repo does not exist.
func (c *Client) AuthCheck(ctx context.Context, repoID string) error {
	if err := c.doJSON(ctx, http.MethodGet, c.apiURL("api", "models", repoID, "auth-check"), nil, nil); err != nil {
		return fmt.Errorf("checking access to %s: %w", repoID, err)
	}
	return nil
}
