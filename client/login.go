package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Userinfo is the authenticated identity returned by login.
type Userinfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Credentials is the result of a successful login.
type Credentials struct {
	AccessToken string
	Userinfo    Userinfo
}

// Login exchanges a username and password for an access token via the REST
// auth endpoint.
func Login(ctx context.Context, serverURL, username, password string) (Credentials, error) {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return Credentials{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		trimSlash(serverURL)+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return Credentials{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Credentials{}, err
	}
	defer resp.Body.Close()

	var env struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AccessToken string   `json:"access_token"`
			Userinfo    Userinfo `json:"userinfo"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return Credentials{}, err
	}
	if resp.StatusCode != http.StatusOK || !env.Status {
		return Credentials{}, fmt.Errorf("login failed: %s", env.Message)
	}
	return Credentials{AccessToken: env.Data.AccessToken, Userinfo: env.Data.Userinfo}, nil
}
