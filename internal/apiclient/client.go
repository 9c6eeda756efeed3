package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"

	"rentport/internal/constants"
	"rentport/internal/types"
)

// Error taxonomy surfaced to the data layer. Cache mutations report
// these as return values; nothing here is thrown into rendering paths.
var (
	// ErrUnauthenticated: no/invalid per-tab cookie, or the backend
	// rejected the token. Surfaced by redirecting to login.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNetwork: the request could not complete. Optimistic mutations
	// roll back; reads keep stale-but-available cache contents.
	ErrNetwork = errors.New("network failure")
	// ErrValidation: the server rejected the payload with a 4xx; the
	// message is for the user, not for silent retry.
	ErrValidation = errors.New("validation rejected")
)

// Client is one tab's HTTP surface. The cookie jar holds exactly the
// per-tab session cookie, which is what keeps two Clients with
// different tab ids authenticated as two different users against the
// same origin.
type Client struct {
	baseURL string
	tabID   string
	http    *http.Client
}

func New(baseURL, tabID string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &Client{
		baseURL: baseURL,
		tabID:   tabID,
		http: &http.Client{
			Jar:     jar,
			Timeout: constants.RequestTimeout,
		},
	}, nil
}

func (c *Client) TabID() string {
	return c.tabID
}

// Login authenticates this tab. On success the server's Set-Cookie for
// session_<tabId> lands in the jar and rides along on every later call.
func (c *Client) Login(ctx context.Context, email, password string) (*types.LoginData, error) {
	body := types.LoginRequest{Email: email, Password: password, TabID: c.tabID}
	var data types.LoginData
	if err := c.do(ctx, http.MethodPost, constants.EndpointLogin, body, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Me resolves the tab's cookie to its identity, or ErrUnauthenticated.
func (c *Client) Me(ctx context.Context) (*types.MeData, error) {
	var data types.MeData
	if err := c.do(ctx, http.MethodGet, constants.EndpointMe, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Logout deletes this tab's cookie server-side. Idempotent: succeeds
// even when no cookie exists.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, constants.EndpointLogout, types.LogoutRequest{TabID: c.tabID}, nil)
}

// Uniform resource verbs. Typed access goes through the package-level
// generic helpers below.

func (c *Client) ListRaw(ctx context.Context, resource string) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.do(ctx, http.MethodGet, constants.EndpointResources+resource, nil, &raw)
	return raw, err
}

func (c *Client) CreateRaw(ctx context.Context, resource string, input any) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.do(ctx, http.MethodPost, constants.EndpointResources+resource, input, &raw)
	return raw, err
}

func (c *Client) UpdateRaw(ctx context.Context, resource, id string, input any) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.do(ctx, http.MethodPut, constants.EndpointResources+resource+"/"+id, input, &raw)
	return raw, err
}

func (c *Client) DeleteResource(ctx context.Context, resource, id string) error {
	return c.do(ctx, http.MethodDelete, constants.EndpointResources+resource+"/"+id, nil, nil)
}

func List[T any](ctx context.Context, c *Client, resource string) ([]T, error) {
	raw, err := c.ListRaw(ctx, resource)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: malformed list response: %v", ErrNetwork, err)
	}
	return out, nil
}

func Create[T any](ctx context.Context, c *Client, resource string, input T) (T, error) {
	var out T
	raw, err := c.CreateRaw(ctx, resource, input)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: malformed create response: %v", ErrNetwork, err)
	}
	return out, nil
}

func Update[T any](ctx context.Context, c *Client, resource, id string, input T) (T, error) {
	var out T
	raw, err := c.UpdateRaw(ctx, resource, id, input)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: malformed update response: %v", ErrNetwork, err)
	}
	return out, nil
}

// do runs one envelope-wrapped request and decodes data into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(constants.TabIDHeader, c.tabID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	var envelope types.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%w: malformed response: %v", ErrNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthenticated
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		msg := envelope.Error
		if msg == "" {
			msg = envelope.Message
		}
		return fmt.Errorf("%w: %s", ErrValidation, msg)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: server returned %d", ErrNetwork, resp.StatusCode)
	}

	if !envelope.Success {
		return fmt.Errorf("%w: %s", ErrValidation, envelope.Error)
	}

	if out != nil && envelope.Data != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("%w: malformed data: %v", ErrNetwork, err)
		}
	}
	return nil
}
