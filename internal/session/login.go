package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// formLogin posts the credentials as an HTML form. The username and
// password fields default to "username" and "password"; Payload entries
// are carried as-is, so hidden fields such as CSRF tokens can be supplied.
// Cookies set by the login response land in the session jar.
func (m *Manager) formLogin(ctx context.Context, s *Session) error {
	data := url.Values{}
	for k, v := range s.creds.Payload {
		data.Set(k, v)
	}
	if data.Get("username") == "" {
		data.Set("username", s.creds.Username)
	}
	if data.Get("password") == "" {
		data.Set("password", s.creds.Password)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.creds.LoginURL,
		strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range s.creds.Headers {
		req.Header.Set(k, v)
	}

	resp, err := m.sessionClient(s).Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status %d from %s", ErrLoginFailed, resp.StatusCode, s.creds.LoginURL)
	}
	return nil
}

// tokenResponse is the expected shape of an API login response. Either
// field may carry the token.
type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
}

// tokenLogin posts the credentials as JSON and stores the returned bearer
// token on the session. Payload entries are merged into the JSON body next
// to the username and password.
func (m *Manager) tokenLogin(ctx context.Context, s *Session) error {
	body := map[string]string{}
	for k, v := range s.creds.Payload {
		body[k] = v
	}
	if s.creds.Username != "" {
		body["username"] = s.creds.Username
	}
	if s.creds.Password != "" {
		body["password"] = s.creds.Password
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode login payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.creds.LoginURL,
		bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.creds.Headers {
		req.Header.Set(k, v)
	}

	resp, err := m.sessionClient(s).Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status %d from %s", ErrLoginFailed, resp.StatusCode, s.creds.LoginURL)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return fmt.Errorf("%w: unparsable token response: %v", ErrLoginFailed, err)
	}

	token := tr.Token
	if token == "" {
		token = tr.AccessToken
	}
	if token == "" {
		return fmt.Errorf("%w: no token in response from %s", ErrLoginFailed, s.creds.LoginURL)
	}

	m.mu.Lock()
	s.token = token
	m.mu.Unlock()
	return nil
}
